package utils_test

import (
	"errors"
	"testing"

	"github.com/raysh454/fastscan/internal/utils"
)

func TestNormalizeTarget_StripsSchemeAndTrailingSlash(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"example.com":               "example.com",
		"https://example.com/":      "example.com",
		"http://example.com":        "example.com",
		"HTTPS://Example.com/path/": "Example.com/path",
		"example.com///":            "example.com",
	}
	for in, want := range cases {
		got, err := utils.NormalizeTarget(in)
		if err != nil {
			t.Errorf("NormalizeTarget(%q) unexpected error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("NormalizeTarget(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeTarget_RejectsWithoutDotOrWithWhitespace(t *testing.T) {
	t.Parallel()
	bad := []string{
		"localhost",
		"https://localhost/",
		"exa mple.com",
		" example.com",
		"example.com\t",
		"example\n.com",
		"https://",
	}
	for _, in := range bad {
		_, err := utils.NormalizeTarget(in)
		if err == nil {
			t.Errorf("NormalizeTarget(%q) expected error", in)
			continue
		}
		if !utils.IsValidationError(err) {
			t.Errorf("NormalizeTarget(%q) error %v is not a validation error", in, err)
		}
	}
}

func TestNormalizeTarget_Empty(t *testing.T) {
	t.Parallel()
	if _, err := utils.NormalizeTarget(""); !errors.Is(err, utils.ErrEmptyURL) {
		t.Fatalf("expected ErrEmptyURL, got %v", err)
	}
}

func TestHostname(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"https://A.com/x?y=1":         "a.com",
		"b.com/path":                  "b.com",
		"http://sub.example.org:8080": "sub.example.org",
	}
	for in, want := range cases {
		got, err := utils.Hostname(in)
		if err != nil {
			t.Errorf("Hostname(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("Hostname(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHostname_Invalid(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"", "http://", "https://%zz"} {
		if _, err := utils.Hostname(in); err == nil {
			t.Errorf("Hostname(%q) expected error", in)
		}
	}
}

func TestExtractDomain(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"":                                  "",
		"web.abc.com/hello?a=1":             "web.abc.com",
		"https://www.Web.abc.com/hello?a=1": "web.abc.com",
		"abc.com#top":                       "abc.com",
		"HTTP://WWW.EXAMPLE.COM":            "example.com",
		"foo":                               "foo",
	}
	for in, want := range cases {
		if got := utils.ExtractDomain(in); got != want {
			t.Errorf("ExtractDomain(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLooksLikeDomain(t *testing.T) {
	t.Parallel()
	if !utils.LooksLikeDomain("a.com") {
		t.Error("a.com should look like a domain")
	}
	if utils.LooksLikeDomain("foo") || utils.LooksLikeDomain("") {
		t.Error("foo and empty should not look like domains")
	}
}

func TestFetchURL(t *testing.T) {
	t.Parallel()
	if got := utils.FetchURL("a.com/x"); got != "https://a.com/x" {
		t.Errorf("FetchURL = %q", got)
	}
	if got := utils.FetchURL("http://a.com"); got != "http://a.com" {
		t.Errorf("FetchURL kept scheme wrong: %q", got)
	}
}
