package classifier

// ServiceMarkers is a service slug and the literal markers that reveal it.
// A service is detected when any of its markers occurs in the page,
// ignoring ASCII case.
type ServiceMarkers struct {
	Slug    string
	Markers []string
}

// SocialMarkers lists social networks and their embeds or pixels.
var SocialMarkers = []ServiceMarkers{
	{"facebook", []string{"fbq(", "connect.facebook.net", "www.facebook.com/plugins", "fb-root", "Facebook Pixel Code", "facebook.com/plugins"}},
	{"instagram", []string{"instagram.com/embed", "instagram.com/p/", "platform.instagram.com", "instawidget.net"}},
	{"twitter", []string{"platform.twitter.com", "twitter-widgets.js", "ads-twitter.com", "twitter.com/intent"}},
	{"linkedin", []string{"platform.linkedin.com", "linkedin.com/embed", "snap.licdn.com", "insight.min.js"}},
	{"pinterest", []string{"assets.pinterest.com", "pinterest.com/pin/create"}},
	{"tiktok", []string{"tiktok.com/embed", "analytics.tiktok.com", "www.tiktok.com/embed"}},
	{"snapchat", []string{"snapchat.com", "sc-static.net"}},
	{"disqus", []string{"disqus.com"}},
}

// ThirdPartyMarkers lists embeds, widgets, fonts and other third-party content.
var ThirdPartyMarkers = []ServiceMarkers{
	{"youtube", []string{"youtube.com/embed", "youtube-nocookie.com", "youtube.com/iframe_api", "youtu.be/", "www.youtube.com/watch"}},
	{"vimeo", []string{"player.vimeo.com", "i.vimeocdn.com"}},
	{"google-maps", []string{"maps.google.com", "google.com/maps", "maps.googleapis.com", "new google.maps.", "wp-google-maps"}},
	{"google-recaptcha", []string{"google.com/recaptcha", "grecaptcha", "recaptcha/api", "recaptcha.js"}},
	{"google-fonts", []string{"fonts.googleapis.com", "fonts.gstatic.com"}},
	{"spotify", []string{"open.spotify.com/embed"}},
	{"soundcloud", []string{"w.soundcloud.com/player", "api.soundcloud.com"}},
	{"dailymotion", []string{"dailymotion.com/embed"}},
	{"hubspot", []string{"js.hs-scripts.com", "js.hsforms.net", "hbspt.forms.create", "track.hubspot.com", "js.hs-analytics.net"}},
	{"calendly", []string{"assets.calendly.com", "calendly.com/widget"}},
	{"typeform", []string{"embed.typeform.com"}},
	{"intercom", []string{"widget.intercom.io", "js.intercomcdn.com", "Intercom("}},
	{"hotjar", []string{"static.hotjar.com", "script.hotjar.com"}},
	{"livechat", []string{"cdn.livechatinc.com"}},
	{"openstreetmaps", []string{"openstreetmap.org"}},
	{"paypal", []string{"www.paypal.com/tagmanager", "www.paypalobjects.com", "paypal.com/sdk"}},
	{"stripe", []string{"js.stripe.com"}},
	{"addthis", []string{"addthis.com", "s7.addthis.com"}},
	{"addtoany", []string{"static.addtoany.com"}},
	{"sharethis", []string{"sharethis.com"}},
	{"microsoft-ads", []string{"bat.bing.com"}},
	{"microsoft-clarity", []string{"clarity.ms"}},
	{"adobe-fonts", []string{"p.typekit.net", "use.typekit.net"}},
	{"twitch", []string{"player.twitch.tv", "embed.twitch.tv"}},
	{"wistia", []string{"fast.wistia.com", "wistia.net"}},
	{"loom", []string{"loom.com/embed"}},
	{"apple-podcasts", []string{"embed.podcasts.apple.com"}},
	{"tawk-to", []string{"embed.tawk.to"}},
	{"drift", []string{"js.driftt.com"}},
	{"crisp", []string{"client.crisp.chat"}},
	{"tidio", []string{"code.tidio.co"}},
	{"cloudflare-turnstile", []string{"challenges.cloudflare.com/turnstile"}},
	{"hcaptcha", []string{"hcaptcha.com", "js.hcaptcha.com"}},
}

// StatsMarkers lists analytics and tag management services.
var StatsMarkers = []ServiceMarkers{
	{"google-analytics", []string{"google-analytics.com/ga.js", "www.google-analytics.com/analytics.js", "_getTracker", "gtag('js'", `gtag("js"`, "googletagmanager.com/gtag/js"}},
	{"google-tag-manager", []string{"gtm.start", "gtm.js", "googletagmanager.com/gtm.js"}},
	{"matomo", []string{"piwik.js", "matomo.js", "matomo.cloud"}},
	{"clicky", []string{"static.getclicky.com/js", "clicky_site_ids"}},
	{"yandex", []string{"mc.yandex.ru/metrika/watch.js", "mc.yandex.ru/metrika/tag.js"}},
	{"clarity", []string{"clarity.ms/tag/"}},
	{"plausible", []string{"plausible.io/js"}},
	{"fathom", []string{"cdn.usefathom.com"}},
	{"heap", []string{"cdn.heapanalytics.com"}},
	{"mixpanel", []string{"cdn.mxpnl.com"}},
	{"amplitude", []string{"cdn.amplitude.com"}},
	{"segment", []string{"cdn.segment.com/analytics.js"}},
}

// TrackingPattern extracts one kind of tracking identifier from HTML.
// When Prefix is set the identifier is redacted to Prefix + "***",
// otherwise to Type + ":***".
type TrackingPattern struct {
	Type    string
	Service string
	Prefix  string
	Pattern string
}

// TrackingPatterns lists the identifier patterns, in report order.
var TrackingPatterns = []TrackingPattern{
	{Type: "gtm", Service: "Google Tag Manager", Prefix: "GTM-", Pattern: `GTM-[A-Z0-9]{4,8}`},
	{Type: "ga4", Service: "Google Analytics 4", Prefix: "G-", Pattern: `\bG-[A-Z0-9]{6,12}`},
	{Type: "ua", Service: "Universal Analytics", Prefix: "UA-", Pattern: `UA-[0-9]{4,10}-[0-9]{1,4}`},
	{Type: "google-ads", Service: "Google Ads", Prefix: "AW-", Pattern: `AW-[0-9]{8,12}`},
	{Type: "facebook-pixel", Service: "Facebook Pixel", Pattern: `fbq\s*\(\s*['"]init['"]\s*,\s*['"]([0-9]{14,17})['"]`},
	{Type: "hotjar", Service: "Hotjar", Pattern: `(?s)h\._hjSettings\s*.*?hjid\s*:\s*([0-9]{6,8})`},
	{Type: "clarity", Service: "Microsoft Clarity", Pattern: `clarity\.ms/tag/([a-z0-9]+)`},
	{Type: "matomo", Service: "Matomo", Pattern: `setSiteId\s*['",\s]*([0-9]{1,6})`},
}

// Redacted returns the stored form of an identifier of this pattern.
func (p TrackingPattern) Redacted() string {
	if p.Prefix != "" {
		return p.Prefix + "***"
	}
	return p.Type + ":***"
}

// doubleStatsFamily is an analytics family and the script names whose
// combined raw occurrence count reveals a duplicate install.
type doubleStatsFamily struct {
	Name  string
	Terms []string
}

var doubleStatsFamilies = []doubleStatsFamily{
	{Name: "Google Analytics", Terms: []string{"ga.js", "analytics.js", "gtag/js"}},
	{Name: "Google Tag Manager", Terms: []string{"gtm.js"}},
	{Name: "Matomo", Terms: []string{"piwik.js", "matomo.js"}},
	{Name: "Clicky", Terms: []string{"getclicky.com/js"}},
}
