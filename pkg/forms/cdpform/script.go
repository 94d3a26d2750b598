package cdpform

// Page-side scripts. Each runs as a single expression and returns a JSON
// value. Control locators rely on the data attribute written by the scan;
// a rescan reassigns ids, so handles from an old scan fail loudly rather
// than touching the wrong element.

// scanScript discovers form elements and outermost div containers holding
// two or more controls, tags each container, and describes its bindable
// controls. The checked state of checkboxes is reported through the value
// field as "true"/"false"; radios report their value attribute.
const scanScript = `(() => {
  const CONTROL_SEL = 'input, textarea, select';
  const isBindable = (el) => {
    if (el.disabled || el.readOnly) return false;
    if (el.tagName === 'INPUT') {
      const t = (el.type || 'text').toLowerCase();
      return !['hidden', 'submit', 'button', 'reset', 'image', 'file'].includes(t);
    }
    return el.tagName === 'TEXTAREA' || el.tagName === 'SELECT';
  };

  const containers = [];
  for (const form of document.querySelectorAll('form')) containers.push(form);
  for (const div of document.querySelectorAll('div')) {
    if (div.closest('form') || div.querySelector('form')) continue;
    if (containers.some((c) => c !== div && c.contains(div))) continue;
    const controls = [...div.querySelectorAll(CONTROL_SEL)].filter(isBindable);
    if (controls.length >= 2) containers.push(div);
  }

  const labelFor = (el) => {
    if (el.id) {
      const lab = document.querySelector('label[for="' + CSS.escape(el.id) + '"]');
      if (lab) return lab.textContent.trim();
    }
    const wrap = el.closest('label');
    if (wrap) return wrap.textContent.trim();
    return el.getAttribute('aria-label') || '';
  };

  return containers.map((container, id) => {
    container.setAttribute('data-voxfill-form', String(id));
    const controls = [...container.querySelectorAll(CONTROL_SEL)].filter(isBindable);
    return {
      id,
      kind: container.tagName === 'FORM' ? 'form' : 'container',
      controls: controls.map((el, index) => {
        el.setAttribute('data-voxfill-control', String(index));
        const tag = el.tagName.toLowerCase();
        const inputType = tag === 'input' ? (el.type || 'text').toLowerCase() : '';
        let value = el.value || '';
        if (inputType === 'checkbox') value = el.checked ? 'true' : 'false';
        return {
          index,
          name: el.name || el.id || '',
          kind: tag,
          inputType,
          label: labelFor(el),
          placeholder: el.getAttribute('placeholder') || '',
          value,
          options: tag === 'select'
            ? [...el.options].map((o) => ({ value: o.value, text: o.text.trim() }))
            : [],
        };
      }),
    };
  });
})()`

// surroundingTextScript collects the visible text preceding the form, most
// recent first, and returns the trailing slice of it. Verb placeholders:
// form id, max length.
const surroundingTextScript = `(() => {
  const form = document.querySelector('[data-voxfill-form="%d"]');
  if (!form) return '';
  const maxLen = %d;
  const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT);
  const parts = [];
  let node;
  while ((node = walker.nextNode())) {
    const pos = form.compareDocumentPosition(node);
    if (!(pos & Node.DOCUMENT_POSITION_PRECEDING)) break;
    const style = node.parentElement && getComputedStyle(node.parentElement);
    if (style && (style.display === 'none' || style.visibility === 'hidden')) continue;
    const text = node.textContent.replace(/\s+/g, ' ').trim();
    if (text) parts.push(text);
  }
  const joined = parts.join(' ');
  return joined.length > maxLen ? joined.slice(-maxLen) : joined;
})()`

// locatePrefix resolves one control from its form id and control index.
const locatePrefix = `(() => {
  const form = document.querySelector('[data-voxfill-form="%d"]');
  const el = form && form.querySelector('[data-voxfill-control="%d"]');
  if (!el) return false;`

// setValueScript writes through the element's native value setter so
// frameworks that patch the prototype observe the change, then fires the
// input and change events. Verb placeholders: form id, control index,
// JSON-quoted value.
const setValueScript = locatePrefix + `
  const proto = el.tagName === 'TEXTAREA'
    ? window.HTMLTextAreaElement.prototype
    : window.HTMLInputElement.prototype;
  const setter = Object.getOwnPropertyDescriptor(proto, 'value');
  if (setter && setter.set) setter.set.call(el, %s); else el.value = %[3]s;
  el.dispatchEvent(new Event('input', { bubbles: true }));
  el.dispatchEvent(new Event('change', { bubbles: true }));
  return true;
})()`

// setCheckedScript sets the checked state of radio and checkbox inputs.
// Verb placeholders: form id, control index, true/false.
const setCheckedScript = locatePrefix + `
  el.checked = %s;
  el.dispatchEvent(new Event('input', { bubbles: true }));
  el.dispatchEvent(new Event('change', { bubbles: true }));
  return true;
})()`

// selectOptionScript selects the option with the given value attribute.
// Verb placeholders: form id, control index, JSON-quoted value.
const selectOptionScript = locatePrefix + `
  el.value = %s;
  el.dispatchEvent(new Event('input', { bubbles: true }));
  el.dispatchEvent(new Event('change', { bubbles: true }));
  return true;
})()`
