package browser

// hookJS runs in the host page's main world. It buffers action clicks, inbound
// cross-window messages and anchor mutations in window.__trenkoEvents until the next
// drain. Installing twice is a no-op.
const hookJS = `
(anchor) => {
	const w = window;
	if (w.__trenkoHooked) return true;
	w.__trenkoHooked = true;
	w.__trenkoEvents = [];
	const push = (ev) => {
		ev.ts = Date.now();
		ev.href = location.href;
		w.__trenkoEvents.push(ev);
	};

	document.addEventListener('click', (ev) => {
		try {
			const el = ev.target && ev.target.closest ? ev.target.closest('[data-trenko-action]') : null;
			if (!el) return;
			push({ type: 'action', action: el.getAttribute('data-trenko-action') || '' });
		} catch (e) {}
	}, true);

	w.addEventListener('message', (ev) => {
		let data = 'null';
		try {
			const s = JSON.stringify(ev.data);
			if (typeof s === 'string') data = s;
		} catch (e) {}
		push({ type: 'message', origin: ev.origin || '', data });
	});

	const holds = (nodes) => {
		for (const n of nodes) {
			if (n.nodeType !== 1) continue;
			try {
				if (n.matches(anchor) || n.querySelector(anchor)) return true;
			} catch (e) {}
		}
		return false;
	};
	new MutationObserver((records) => {
		let added = false, removed = false;
		for (const r of records) {
			if (!added && holds(r.addedNodes)) added = true;
			if (!removed && holds(r.removedNodes)) removed = true;
		}
		if (added || removed) push({ type: 'mutation', added, removed });
	}).observe(document, { childList: true, subtree: true });
	push({ type: 'mutation', initial: true, added: !!document.querySelector(anchor), removed: false });
	return true;
}
`

const drainJS = `
() => {
	const buf = Array.isArray(window.__trenkoEvents) ? window.__trenkoEvents : [];
	window.__trenkoEvents = [];
	return buf;
}
`

const locationJS = `() => location.href`

const geometryJS = `
() => ({ left: window.screenX, top: window.screenY, width: window.outerWidth, height: window.outerHeight })
`

// openJS runs with a user gesture so the popup blocker treats it as a click.
const openJS = `
(target, name, features) => {
	const popup = window.open(target, name, features);
	return !!popup;
}
`

// notifyJS defers the alert so the evaluation returns before the dialog blocks the page.
const notifyJS = `
(msg) => {
	setTimeout(() => alert(msg), 0);
	return true;
}
`

const hasPanelJS = `(sel) => !!document.querySelector(sel)`

const containerHTMLJS = `
(anchor, container) => {
	const a = document.querySelector(anchor);
	if (!a) return null;
	const c = a.closest(container);
	return c ? c.outerHTML : null;
}
`

const insertPanelJS = `
(anchor, container, html) => {
	const a = document.querySelector(anchor);
	if (!a) return false;
	const c = a.closest(container);
	if (!c) return false;
	const t = document.createElement('template');
	t.innerHTML = html;
	c.insertBefore(t.content, c.firstChild);
	return true;
}
`

const removePanelJS = `
(sel) => {
	document.querySelectorAll(sel).forEach((n) => n.remove());
	return true;
}
`

const setVisibilityJS = `
(panel, attr, states) => {
	const root = document.querySelector(panel);
	if (!root) return false;
	for (const [id, show] of Object.entries(states)) {
		const button = root.querySelector('[' + attr + '="' + CSS.escape(id) + '"]');
		const item = button ? button.closest('li') : null;
		if (item) item.hidden = !show;
	}
	return true;
}
`
