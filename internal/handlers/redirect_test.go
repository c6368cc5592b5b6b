package handlers

import "testing"

func TestClassifyUserAgent(t *testing.T) {
	cases := []struct {
		ua      string
		device  string
		os      string
		browser string
	}{
		{
			ua:      "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			device:  "mobile",
			os:      "ios",
			browser: "safari",
		},
		{
			ua:      "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Mobile Safari/537.36",
			device:  "mobile",
			os:      "android",
			browser: "chrome",
		},
		{
			ua:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36 Edg/120.0",
			device:  "desktop",
			os:      "windows",
			browser: "edge",
		},
		{
			ua:      "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			device:  "desktop",
			os:      "linux",
			browser: "firefox",
		},
		{ua: "", device: "", os: "", browser: ""},
	}

	for _, tc := range cases {
		device, osName, browser := classifyUserAgent(tc.ua)
		if device != tc.device || osName != tc.os || browser != tc.browser {
			t.Errorf("classifyUserAgent(%q) = (%q, %q, %q), want (%q, %q, %q)",
				tc.ua, device, osName, browser, tc.device, tc.os, tc.browser)
		}
	}
}
