package browser

// EvasionScript runs before any page script and hides the usual automation tells.
const EvasionScript = `(() => {
	Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
	Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});
	Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]});
	if (!window.chrome) {
		window.chrome = {runtime: {}};
	}
	const query = window.navigator.permissions && window.navigator.permissions.query;
	if (query) {
		window.navigator.permissions.query = (p) => p && p.name === 'notifications'
			? Promise.resolve({state: Notification.permission})
			: query(p);
	}
})();`

const acceptLanguage = "en-US,en;q=0.9"
