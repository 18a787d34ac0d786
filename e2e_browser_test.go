package blogpage_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"github.com/livefir/blogpage"
	"github.com/livefir/blogpage/internal/fixture"
)

// Browser tests need a local Chrome and only run with BLOGPAGE_BROWSER_TESTS=1.
func browserContext(t *testing.T) context.Context {
	t.Helper()
	if testing.Short() || os.Getenv("BLOGPAGE_BROWSER_TESTS") != "1" {
		t.Skip("set BLOGPAGE_BROWSER_TESTS=1 to run browser tests")
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	t.Cleanup(cancelAlloc)

	ctx, cancelCtx := chromedp.NewContext(allocCtx)
	t.Cleanup(cancelCtx)

	ctx, cancelTimeout := context.WithTimeout(ctx, 30*time.Second)
	t.Cleanup(cancelTimeout)
	return ctx
}

func newBrowserServer(t *testing.T, opts ...blogpage.Option) *httptest.Server {
	t.Helper()

	blog, err := fixture.Load("internal/fixture/testdata/blog.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	site, err := fixture.NewSite(blog, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSite failed: %v", err)
	}

	mux := http.NewServeMux()
	site.Register(mux, blogpage.Mount(site, append(opts, blogpage.WithLogger(zerolog.Nop()))...))
	mux.HandleFunc("GET "+blogpage.ClientLibraryPath, blogpage.ServeClientLibrary)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// waitReady waits for the page script to finish connecting
func waitReady() chromedp.Action {
	return chromedp.WaitNotPresent("html[data-lvt-loading]", chromedp.ByQuery)
}

func TestBrowserCommentForms(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts []blogpage.Option
	}{
		{name: "websocket"},
		{name: "http", opts: []blogpage.Option{blogpage.WithWebSocketDisabled()}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := browserContext(t)
			srv := newBrowserServer(t, tc.opts...)

			var (
				parent   string
				contents string
				action   string
				parentOf string
			)
			err := chromedp.Run(ctx,
				chromedp.Navigate(srv.URL+"/posts/42/view"),
				waitReady(),

				chromedp.Click("#reply-comment-5", chromedp.ByQuery),
				chromedp.WaitVisible("#comment-reply-form", chromedp.ByQuery),
				chromedp.Value("#comment-reply-form-id", &parent, chromedp.ByQuery),
				chromedp.Evaluate(`document.getElementById("comment-reply-form").previousElementSibling.id`, &parentOf),

				chromedp.Click("#edit-comment-9", chromedp.ByQuery),
				chromedp.WaitVisible("#edit-comment-form", chromedp.ByQuery),
				chromedp.Value("#edit-comment-form-contents", &contents, chromedp.ByQuery),
				chromedp.AttributeValue("#edit-comment-form", "action", &action, nil, chromedp.ByQuery),
			)
			if err != nil {
				t.Fatalf("browser run failed: %v", err)
			}

			if parent != "5" {
				t.Errorf("reply parent = %q, want 5", parent)
			}
			if parentOf != "comment-5" {
				t.Errorf("reply form follows %q, want comment-5", parentOf)
			}
			if contents != "Nine" {
				t.Errorf("edit contents = %q, want Nine", contents)
			}
			if !strings.HasSuffix(action, "/posts/42/comments/9/edit") {
				t.Errorf("edit action = %q", action)
			}

			// Second click on the same edit trigger closes the form
			err = chromedp.Run(ctx,
				chromedp.Click("#edit-comment-9", chromedp.ByQuery),
				chromedp.WaitNotVisible("#edit-comment-form", chromedp.ByQuery),
			)
			if err != nil {
				t.Fatalf("edit toggle failed: %v", err)
			}
		})
	}
}

func TestBrowserPaginate(t *testing.T) {
	ctx := browserContext(t)
	srv := newBrowserServer(t)

	var href string
	err := chromedp.Run(ctx,
		chromedp.Navigate(srv.URL+"/posts?page=1"),
		waitReady(),
		chromedp.Click("#paginate_20", chromedp.ByQuery),
		chromedp.WaitReady(`body`, chromedp.ByQuery),
		chromedp.Poll(`location.search.includes("size=20")`, nil),
		chromedp.Location(&href),
	)
	if err != nil {
		t.Fatalf("browser run failed: %v", err)
	}

	if !strings.HasSuffix(href, "/posts?page=1&size=20") {
		t.Errorf("location = %q", href)
	}
}

func TestBrowserTogglePassword(t *testing.T) {
	ctx := browserContext(t)
	srv := newBrowserServer(t)

	var kind string
	err := chromedp.Run(ctx,
		chromedp.Navigate(srv.URL+"/login"),
		waitReady(),
		chromedp.Click("#toggle-password", chromedp.ByQuery),
		chromedp.Poll(`document.getElementById("password").type === "text"`, nil),
		chromedp.Click("#toggle-password", chromedp.ByQuery),
		chromedp.Poll(`document.getElementById("password").type === "password"`, nil),
		chromedp.AttributeValue("#password", "type", &kind, nil, chromedp.ByQuery),
	)
	if err != nil {
		t.Fatalf("browser run failed: %v", err)
	}
	if kind != "password" {
		t.Errorf("type = %q, want password", kind)
	}
}
