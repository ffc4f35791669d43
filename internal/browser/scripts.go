package browser

import "encoding/json"

// dismissScript clicks the first consent control matching one of the CSS
// selectors (%[1]s), then falls back to buttons whose text contains one of the
// given phrases (%[2]s).
const dismissScript = `(() => {
	const selectors = %[1]s, texts = %[2]s;
	for (const sel of selectors) {
		try {
			const el = document.querySelector(sel);
			if (el) { el.click(); return true; }
		} catch (e) {}
	}
	for (const el of document.querySelectorAll('button, a, [role="button"]')) {
		const t = (el.innerText || '').trim().toLowerCase();
		if (t && texts.some(x => t.includes(x))) { el.click(); return true; }
	}
	return false;
})()`

const revealScript = `(() => {
	const texts = %[1]s;
	for (const el of document.querySelectorAll('button, a, [role="button"]')) {
		if (el.disabled || el.offsetParent === null) continue;
		const t = (el.innerText || '').trim().toLowerCase();
		if (t && texts.some(x => t.includes(x))) { el.scrollIntoView(); el.click(); return true; }
	}
	return false;
})()`

const scrollScript = `(() => {
	window.scrollTo(0, document.body.scrollHeight);
	return document.body.scrollHeight;
})()`

const linksScript = `Array.from(document.querySelectorAll('a[href]'), a => a.href).filter(h => h.startsWith('http'))`

const searchScript = `(() => {
	const selectors = %[1]s, query = %[2]s;
	let input = null;
	for (const sel of selectors) {
		try { input = document.querySelector(sel); } catch (e) {}
		if (input) break;
	}
	if (!input) return false;
	input.focus();
	input.value = query;
	input.dispatchEvent(new Event('input', { bubbles: true }));
	input.dispatchEvent(new Event('change', { bubbles: true }));
	if (input.form) {
		if (input.form.requestSubmit) input.form.requestSubmit(); else input.form.submit();
		return true;
	}
	for (const type of ['keydown', 'keypress', 'keyup']) {
		input.dispatchEvent(new KeyboardEvent(type, { key: 'Enter', code: 'Enter', keyCode: 13, bubbles: true }));
	}
	return true;
})()`

func jsArray(items []string) string {
	if items == nil {
		items = []string{}
	}
	b, _ := json.Marshal(items)
	return string(b)
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
