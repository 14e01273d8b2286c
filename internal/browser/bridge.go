package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/chromedp/chromedp"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Page is a rendered document.
type Page struct {
	URL   string
	Title string
	HTML  string
}

// Renderer loads a URL in a real browser and returns the rendered page.
type Renderer interface {
	Render(ctx context.Context, url string) (Page, error)
	Close()
}

// Bridge owns one Chrome process, started on first use and shared by all
// calls. Each Render opens its own tab and always closes it.
type Bridge struct {
	profileDir string
	headless   bool
	logger     *slog.Logger

	mu         sync.Mutex
	browserCtx context.Context
	cancel     context.CancelFunc
}

// BridgeConfig holds configuration for the browser bridge.
type BridgeConfig struct {
	ProfileDir string // Chrome user data directory; empty uses a throwaway profile
	Headless   bool
	Logger     *slog.Logger
}

func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Bridge{
		profileDir: cfg.ProfileDir,
		headless:   cfg.Headless,
		logger:     cfg.Logger,
	}
}

func (b *Bridge) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.UserAgent(userAgent),
	)
	if b.profileDir != "" {
		opts = append(opts, chromedp.UserDataDir(b.profileDir))
	}
	if b.headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	return opts
}

// browser returns the shared browser context, launching Chrome if needed.
func (b *Bridge) browser() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browserCtx != nil && b.browserCtx.Err() == nil {
		return b.browserCtx, nil
	}

	if b.profileDir != "" {
		if err := os.MkdirAll(filepath.Clean(b.profileDir), 0o755); err != nil {
			return nil, fmt.Errorf("create profile dir: %w", err)
		}
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), b.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	// An empty Run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	b.browserCtx = browserCtx
	b.cancel = func() {
		browserCancel()
		allocCancel()
	}
	b.logger.Info("browser started", "headless", b.headless)
	return browserCtx, nil
}

// newTab opens a tab that is closed when ctx ends or cancel is called.
func (b *Bridge) newTab(ctx context.Context) (context.Context, context.CancelFunc, error) {
	browserCtx, err := b.browser()
	if err != nil {
		return nil, nil, err
	}
	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	stop := context.AfterFunc(ctx, tabCancel)
	return tabCtx, func() {
		stop()
		tabCancel()
	}, nil
}

func (b *Bridge) Render(ctx context.Context, url string) (Page, error) {
	tabCtx, cancel, err := b.newTab(ctx)
	if err != nil {
		return Page{}, err
	}
	defer cancel()

	var page Page
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&page.URL),
		chromedp.Title(&page.Title),
		chromedp.OuterHTML("html", &page.HTML, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return Page{}, fmt.Errorf("render %s: %w", url, ctx.Err())
		}
		return Page{}, fmt.Errorf("render %s: %w", url, err)
	}
	return page, nil
}

// Close stops the shared browser. A later Render starts a new one.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
		b.browserCtx = nil
		b.logger.Info("browser stopped")
	}
}
