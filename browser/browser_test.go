package browser

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	cluster "github.com/pedroviniv/simple-puppeteer-cluster"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []Flag
	}{
		{
			name: "bare switch",
			args: []string{"--no-sandbox"},
			want: []Flag{{Name: "no-sandbox", Value: true}},
		},
		{
			name: "switch with value",
			args: []string{"--window-size=1280,720"},
			want: []Flag{{Name: "window-size", Value: "1280,720"}},
		},
		{
			name: "value containing equals",
			args: []string{"--js-flags=--max-old-space-size=512"},
			want: []Flag{{Name: "js-flags", Value: "--max-old-space-size=512"}},
		},
		{
			name: "whitespace and blanks",
			args: []string{"  --disable-gpu ", "", "   "},
			want: []Flag{{Name: "disable-gpu", Value: true}},
		},
		{
			name: "no dashes",
			args: []string{"mute-audio"},
			want: []Flag{{Name: "mute-audio", Value: true}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseArgs(tt.args)
			if len(got) != len(tt.want) {
				t.Fatalf("ParseArgs() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ParseArgs()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestOptions_Defaults(t *testing.T) {
	o := Options{}.withDefaults()

	if o.LaunchAttempts != defaultLaunchAttempts {
		t.Errorf("LaunchAttempts = %d, want %d", o.LaunchAttempts, defaultLaunchAttempts)
	}
	if o.RetryInitial != defaultRetryInitial || o.RetryMax != defaultRetryMax {
		t.Errorf("retry = %v..%v, want %v..%v", o.RetryInitial, o.RetryMax, defaultRetryInitial, defaultRetryMax)
	}
	if o.Logger == nil {
		t.Error("Logger = nil, want default")
	}

	custom := Options{LaunchAttempts: 1, RetryInitial: time.Second, RetryMax: time.Minute}.withDefaults()
	if custom.LaunchAttempts != 1 || custom.RetryInitial != time.Second || custom.RetryMax != time.Minute {
		t.Errorf("withDefaults() overrode explicit values: %+v", custom)
	}
}

// TestFactory_MissingBinary points the factory at a path that cannot exist
// so every attempt fails without needing Chrome installed.
func TestFactory_MissingBinary(t *testing.T) {
	factory := NewFactory(Options{
		ExecPath:       "/nonexistent/chrome-for-tests",
		LaunchAttempts: 2,
		RetryInitial:   time.Millisecond,
		RetryMax:       2 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := factory(ctx, 0, cluster.ResourceSettings{Headless: true})
	if err == nil {
		t.Fatal("factory() expected error for missing binary, got nil")
	}
	if !strings.Contains(err.Error(), "after 2 attempts") {
		t.Errorf("factory() error = %v, want attempt count", err)
	}
}

func TestTarget_Validate(t *testing.T) {
	tests := []struct {
		name    string
		target  Target
		wantErr bool
	}{
		{name: "html", target: Target{HTML: "<h1>Hello, World</h1>"}},
		{name: "https url", target: Target{URL: "https://example.com"}},
		{name: "file url", target: Target{URL: "file:///tmp/page.html"}},
		{name: "empty", target: Target{}, wantErr: true},
		{name: "both", target: Target{HTML: "<p>x</p>", URL: "https://example.com"}, wantErr: true},
		{name: "bad scheme", target: Target{URL: "ftp://example.com"}, wantErr: true},
		{name: "no scheme", target: Target{URL: "example.com"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.target.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTarget_Description(t *testing.T) {
	if got := (Target{URL: "https://example.com"}).Description(); got != "https://example.com" {
		t.Errorf("Description() = %q", got)
	}
	if got := (Target{HTML: "<h1>Hi</h1>"}).Description(); got != "html:<h1>Hi</h1>" {
		t.Errorf("Description() = %q", got)
	}

	long := Target{HTML: strings.Repeat("x", 100)}.Description()
	if !strings.HasSuffix(long, "...") || len(long) != len("html:")+40+3 {
		t.Errorf("Description() = %q, want truncated", long)
	}
}

func TestTarget_DescriptionKeepsRunesWhole(t *testing.T) {
	// 13 three-byte runes fill 39 bytes; the 14th would cross the limit
	html := strings.Repeat("日", 30)
	got := Target{HTML: html}.Description()

	if !utf8.ValidString(got) {
		t.Fatalf("Description() = %q, not valid UTF-8", got)
	}
	want := "html:" + strings.Repeat("日", 13) + "..."
	if got != want {
		t.Errorf("Description() = %q, want %q", got, want)
	}

	mixed := Target{HTML: strings.Repeat("a", 39) + "é" + "tail"}.Description()
	if mixed != "html:"+strings.Repeat("a", 39)+"..." {
		t.Errorf("Description() = %q, want the split rune dropped", mixed)
	}
}

func TestScreenshot_InvalidTargetNeverTouchesBrowser(t *testing.T) {
	work := Screenshot(Target{}, 90)

	// a nil browser would panic if the work got past validation
	_, err := work(context.Background(), nil)
	if err == nil {
		t.Error("Screenshot() expected error for empty target, got nil")
	}
}
