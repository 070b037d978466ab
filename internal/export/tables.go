package export

// vendors maps content-classifier slugs to vendor names.
var vendors = map[string]string{
	"google-analytics":     "Google Analytics",
	"google-tag-manager":   "Google Tag Manager",
	"facebook":             "Facebook / Meta",
	"instagram":            "Instagram / Meta",
	"twitter":              "X (Twitter)",
	"linkedin":             "LinkedIn",
	"pinterest":            "Pinterest",
	"tiktok":               "TikTok",
	"snapchat":             "Snapchat",
	"disqus":               "Disqus",
	"youtube":              "YouTube / Google",
	"vimeo":                "Vimeo",
	"google-maps":          "Google Maps",
	"google-recaptcha":     "Google reCAPTCHA",
	"google-fonts":         "Google Fonts",
	"spotify":              "Spotify",
	"soundcloud":           "SoundCloud",
	"dailymotion":          "Dailymotion",
	"hubspot":              "HubSpot",
	"calendly":             "Calendly",
	"typeform":             "Typeform",
	"intercom":             "Intercom",
	"hotjar":               "Hotjar",
	"livechat":             "LiveChat",
	"openstreetmaps":       "OpenStreetMap",
	"paypal":               "PayPal",
	"stripe":               "Stripe",
	"addthis":              "AddThis",
	"addtoany":             "AddToAny",
	"sharethis":            "ShareThis",
	"microsoft-ads":        "Microsoft Advertising",
	"microsoft-clarity":    "Microsoft Clarity",
	"clarity":              "Microsoft Clarity",
	"adobe-fonts":          "Adobe Fonts",
	"twitch":               "Twitch",
	"wistia":               "Wistia",
	"loom":                 "Loom",
	"apple-podcasts":       "Apple Podcasts",
	"tawk-to":              "Tawk.to",
	"drift":                "Drift",
	"crisp":                "Crisp",
	"tidio":                "Tidio",
	"cloudflare-turnstile": "Cloudflare Turnstile",
	"hcaptcha":             "hCaptcha",
	"matomo":               "Matomo",
	"clicky":               "Clicky",
	"yandex":               "Yandex Metrica",
	"plausible":            "Plausible Analytics",
	"fathom":               "Fathom Analytics",
	"heap":                 "Heap Analytics",
	"mixpanel":             "Mixpanel",
	"amplitude":            "Amplitude",
	"segment":              "Segment",
}

// domains maps content-classifier slugs to the service's primary host.
var domains = map[string]string{
	"google-analytics":     "www.google-analytics.com",
	"google-tag-manager":   "www.googletagmanager.com",
	"facebook":             "www.facebook.com",
	"instagram":            "www.instagram.com",
	"twitter":              "platform.twitter.com",
	"linkedin":             "www.linkedin.com",
	"pinterest":            "www.pinterest.com",
	"tiktok":               "www.tiktok.com",
	"snapchat":             "www.snapchat.com",
	"disqus":               "disqus.com",
	"youtube":              "www.youtube.com",
	"vimeo":                "player.vimeo.com",
	"google-maps":          "maps.googleapis.com",
	"google-recaptcha":     "www.google.com",
	"google-fonts":         "fonts.googleapis.com",
	"spotify":              "open.spotify.com",
	"soundcloud":           "soundcloud.com",
	"dailymotion":          "www.dailymotion.com",
	"hubspot":              "js.hs-scripts.com",
	"calendly":             "calendly.com",
	"typeform":             "embed.typeform.com",
	"intercom":             "widget.intercom.io",
	"hotjar":               "static.hotjar.com",
	"livechat":             "cdn.livechatinc.com",
	"openstreetmaps":       "tile.openstreetmap.org",
	"paypal":               "www.paypal.com",
	"stripe":               "js.stripe.com",
	"addthis":              "s7.addthis.com",
	"addtoany":             "static.addtoany.com",
	"sharethis":            "platform-api.sharethis.com",
	"microsoft-ads":        "bat.bing.com",
	"microsoft-clarity":    "www.clarity.ms",
	"clarity":              "www.clarity.ms",
	"adobe-fonts":          "use.typekit.net",
	"twitch":               "embed.twitch.tv",
	"wistia":               "fast.wistia.com",
	"loom":                 "www.loom.com",
	"apple-podcasts":       "embed.podcasts.apple.com",
	"tawk-to":              "embed.tawk.to",
	"drift":                "js.driftt.com",
	"crisp":                "client.crisp.chat",
	"tidio":                "code.tidio.co",
	"cloudflare-turnstile": "challenges.cloudflare.com",
	"hcaptcha":             "js.hcaptcha.com",
	"matomo":               "cdn.matomo.cloud",
	"clicky":               "static.getclicky.com",
	"yandex":               "mc.yandex.ru",
	"plausible":            "plausible.io",
	"fathom":               "cdn.usefathom.com",
	"heap":                 "cdn.heapanalytics.com",
	"mixpanel":             "cdn.mxpnl.com",
	"amplitude":            "cdn.amplitude.com",
	"segment":              "cdn.segment.com",
}

// iframeServices are usually embedded as frames, in report order.
var iframeServices = []string{
	"youtube", "vimeo", "google-maps", "spotify", "soundcloud",
	"dailymotion", "twitch", "wistia", "loom", "apple-podcasts",
	"calendly", "typeform",
}

type pixel struct {
	slug     string
	domain   string
	kind     string
	category string
}

// pixels are the services known to fire tracking pixels, in report order.
var pixels = []pixel{
	{"facebook", "www.facebook.com", "img", "marketing"},
	{"google-analytics", "www.google-analytics.com", "beacon", "analytics"},
	{"linkedin", "px.ads.linkedin.com", "img", "marketing"},
	{"pinterest", "ct.pinterest.com", "img", "marketing"},
	{"tiktok", "analytics.tiktok.com", "img", "marketing"},
	{"microsoft-ads", "bat.bing.com", "img", "marketing"},
	{"microsoft-clarity", "c.clarity.ms", "img", "analytics"},
	{"clarity", "c.clarity.ms", "img", "analytics"},
	{"hotjar", "vars.hotjar.com", "img", "analytics"},
	{"snapchat", "tr.snapchat.com", "img", "marketing"},
}

// fontServices maps font slugs to their host, in report order.
var fontServices = []struct{ slug, domain string }{
	{"google-fonts", "fonts.googleapis.com"},
	{"adobe-fonts", "use.typekit.net"},
}
