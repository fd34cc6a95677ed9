// Package browser drives a local Chrome tab as the gateway's action
// executor. It is the server-side alternative to the page script executing
// actions itself: useful for kiosk deployments where the browser runs next
// to the gateway.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/Sori-Labs/sori-go-sdk/models"
)

// elementTimeout bounds DOM lookups so a missing element fails fast enough
// for spoken feedback to still feel responsive.
const elementTimeout = 3 * time.Second

const scrollStep = 600

// siteURLs maps canonical Korean brand names to their sites. Targets not
// listed here fall back to a web search.
var siteURLs = map[string]string{
	"맥도날드":  "https://www.mcdonalds.co.kr",
	"롯데리아":  "https://www.lotteeatz.com",
	"스타벅스":  "https://www.starbucks.co.kr",
	"배달의민족": "https://www.baemin.com",
	"카카오톡":  "https://web.kakao.com",
	"유튜브":   "https://www.youtube.com",
	"넷플릭스":  "https://www.netflix.com",
	"네이버":   "https://www.naver.com",
}

const clickableSelector = `a, button, [role="button"], input[type="submit"], input[type="button"], [onclick]`

// LocalExecutor owns one Chrome tab and performs intents against it.
type LocalExecutor struct {
	browser *rod.Browser
	page    *rod.Page
}

// NewLocalExecutor attaches to the debugger URL when one is configured,
// otherwise launches its own Chrome.
func NewLocalExecutor(ctx context.Context, cfg *models.Config) (*LocalExecutor, error) {
	controlURL := cfg.BrowserDebuggerURL
	if controlURL == "" {
		u, err := launcher.New().Headless(cfg.BrowserHeadless).Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: cfg.BrowserStartURL})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	return &LocalExecutor{browser: b, page: page}, nil
}

// Close tears down the tab and, when we launched it, the browser.
func (e *LocalExecutor) Close() error {
	return e.browser.Close()
}

// Execute performs one intent against the tab. The returned outcome always
// carries the page state captured before the action so it can be undone.
func (e *LocalExecutor) Execute(ctx context.Context, action models.Action) (models.ActionOutcome, error) {
	outcome := models.ActionOutcome{
		URLBefore:    e.currentURL(),
		ScrollBefore: e.scrollPosition(),
	}

	page := e.page.Context(ctx)

	var err error
	switch action.Intent {
	case models.IntentClick, models.IntentSelect, models.IntentOrder:
		err = e.clickByText(page, action.Target)
	case models.IntentNavigate:
		err = page.Navigate(resolveURL(action.Target))
	case models.IntentSearch:
		err = e.search(page, action.Target)
	case models.IntentScroll:
		err = e.scroll(page, action.Target)
	case models.IntentInput:
		err = e.typeInto(page, action.Target)
	case models.IntentClear:
		err = e.clearActiveInput(page)
	case models.IntentLogin:
		err = e.clickByText(page, "로그인")
	case models.IntentConfirm:
		err = e.clickByText(page, "확인")
	case models.IntentRead:
		outcome.Feedback, err = e.readPage(page)
	default:
		err = fmt.Errorf("no local handler for intent %q", action.Intent)
	}

	if err != nil {
		return outcome, &models.ExecutionError{Intent: action.Intent, Target: action.Target, Err: err}
	}
	return outcome, nil
}

// Undo reverses one recorded action. A nil record means no history: fall
// back to browser-level back navigation.
func (e *LocalExecutor) Undo(ctx context.Context, rec *models.ActionRecord) error {
	page := e.page.Context(ctx)
	if rec == nil {
		return page.NavigateBack()
	}

	switch rec.Type {
	case models.ActionScroll:
		_, err := page.Evaluate(rod.Eval(fmt.Sprintf(`() => window.scrollTo(%d, %d)`, rec.ScrollBefore.X, rec.ScrollBefore.Y)))
		return err
	default:
		return page.NavigateBack()
	}
}

// DescribeElements summarizes visible clickable/typeable elements, one per
// line, capped at twenty. The summary grounds classifier targets in what
// the user can actually see.
func (e *LocalExecutor) DescribeElements(ctx context.Context) (string, error) {
	return evalString(e.page.Context(ctx), `() => {
		const els = document.querySelectorAll('a, button, [role="button"], input, textarea, select');
		const lines = [];
		for (const el of els) {
			if (lines.length >= 20) break;
			const rect = el.getBoundingClientRect();
			if (rect.width === 0 || rect.height === 0) continue;
			const label = (el.innerText || el.value || el.placeholder || el.getAttribute('aria-label') || '').trim().slice(0, 40);
			if (!label) continue;
			lines.push(el.tagName.toLowerCase() + ': ' + label.replace(/\s+/g, ' '));
		}
		return lines.join('\n');
	}`)
}

func (e *LocalExecutor) clickByText(page *rod.Page, target string) error {
	if strings.TrimSpace(target) == "" {
		return fmt.Errorf("nothing to click")
	}
	el, err := page.Timeout(elementTimeout).ElementR(clickableSelector, "/"+regexp.QuoteMeta(target)+"/i")
	if err != nil {
		return fmt.Errorf("element %q not found: %w", target, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (e *LocalExecutor) search(page *rod.Page, query string) error {
	el, err := page.Timeout(elementTimeout).Element(`input[type="search"], input[name="q"], input[name="query"], input[type="text"]`)
	if err != nil {
		return page.Navigate(searchURL(query))
	}
	if err := el.Input(query); err != nil {
		return fmt.Errorf("failed to type query: %w", err)
	}
	return el.Type(input.Enter)
}

func (e *LocalExecutor) scroll(page *rod.Page, direction string) error {
	step := scrollStep
	if direction == "up" {
		step = -scrollStep
	}
	_, err := page.Evaluate(rod.Eval(fmt.Sprintf(`() => window.scrollBy({top: %d, behavior: "smooth"})`, step)))
	return err
}

func (e *LocalExecutor) typeInto(page *rod.Page, text string) error {
	el, err := page.Timeout(elementTimeout).Element(`input:focus, textarea:focus`)
	if err != nil {
		el, err = page.Timeout(elementTimeout).Element(`input[type="text"], input:not([type]), textarea`)
		if err != nil {
			return fmt.Errorf("no input field found: %w", err)
		}
	}
	return el.Input(text)
}

func (e *LocalExecutor) clearActiveInput(page *rod.Page) error {
	_, err := page.Evaluate(rod.Eval(`() => {
		const el = document.activeElement;
		if (el && 'value' in el) el.value = '';
	}`))
	return err
}

func (e *LocalExecutor) readPage(page *rod.Page) (string, error) {
	return evalString(page, `() => document.body.innerText.trim().slice(0, 500)`)
}

func (e *LocalExecutor) currentURL() string {
	info, err := e.page.Info()
	if err != nil {
		zap.L().Debug("Failed to read page URL", zap.Error(err))
		return ""
	}
	return info.URL
}

func (e *LocalExecutor) scrollPosition() models.ScrollPosition {
	var pos models.ScrollPosition
	res, err := e.page.Evaluate(rod.Eval(`() => ({x: window.scrollX, y: window.scrollY})`))
	if err != nil {
		zap.L().Debug("Failed to read scroll position", zap.Error(err))
		return pos
	}
	data, err := res.Value.MarshalJSON()
	if err != nil {
		return pos
	}
	if err := json.Unmarshal(data, &pos); err != nil {
		zap.L().Debug("Failed to decode scroll position", zap.Error(err))
	}
	return pos
}

// resolveURL turns a spoken destination into something the tab can open:
// a known brand site, a literal URL, or a web search for everything else.
func resolveURL(target string) string {
	target = strings.TrimSpace(target)
	if u, ok := siteURLs[target]; ok {
		return u
	}
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	if strings.Contains(target, ".") && !strings.Contains(target, " ") {
		return "https://" + target
	}
	return searchURL(target)
}

func searchURL(query string) string {
	return "https://search.naver.com/search.naver?query=" + url.QueryEscape(query)
}

func evalString(page *rod.Page, js string) (string, error) {
	res, err := page.Evaluate(rod.Eval(js))
	if err != nil {
		return "", err
	}
	data, err := res.Value.MarshalJSON()
	if err != nil {
		return "", err
	}
	var out string
	if err := json.Unmarshal(data, &out); err != nil {
		return "", err
	}
	return out, nil
}
