// Package gate решает, можно ли продолжать автоматически: нужна ли помощь человека
// и не закрывают ли ошибки формы переход дальше.
package gate

import (
	"sort"
	"strings"

	"autojob/internal/intent"
	"autojob/internal/page"
	"autojob/internal/snapshot"
)

const (
	confidenceCaptcha = 0.95
	confidenceLogin   = 0.9
	confidenceWeak    = 0.6
)

// CaptchaSelectors DOM признаки видимой капчи. Юридическая плашка reCAPTCHA не считается.
var CaptchaSelectors = []string{
	"iframe[src*='recaptcha']",
	".g-recaptcha",
	"iframe[src*='hcaptcha']",
	".h-captcha",
	"[data-sitekey][data-callback]",
	"iframe[title*='captcha' i]",
}

var captchaPhrases = []string{
	"i am not a robot",
	"verify you are human",
	"security check",
	"complete the challenge",
	"select all images",
	"are you human",
}

var (
	loginWords  = []string{"sign in", "log in", "login"}
	verifyWords = []string{"password", "verification code", "two-factor", "2fa", "verify"}
)

// ManualEvidence DOM и текстовые признаки логина и капчи.
type ManualEvidence struct {
	PasswordInput   bool   `json:"password_input"`
	CaptchaVisible  bool   `json:"captcha_visible"`
	CaptchaSelector string `json:"captcha_selector,omitempty"`
	CaptchaText     bool   `json:"captcha_text"`
	LoginButton     bool   `json:"login_button"`
	ApplyCTA        bool   `json:"apply_cta"`
}

type ManualAssessment struct {
	Required   bool
	Reason     string
	Confidence float64
	Evidence   ManualEvidence
}

// CollectManualEvidence сводит сигналы страницы и размеченные намерения.
func CollectManualEvidence(text string, signals page.ManualSignals, snap snapshot.Snapshot, refIntents map[string]intent.Set, textIntents intent.Set) ManualEvidence {
	ev := ManualEvidence{
		PasswordInput:   signals.HasPassword,
		CaptchaVisible:  signals.CaptchaVisible,
		CaptchaSelector: signals.CaptchaSelector,
		CaptchaText:     containsAny(strings.ToLower(text), captchaPhrases),
	}
	for ref, set := range refIntents {
		item, ok := snap.Lookup(ref)
		if !ok || (item.Role != "button" && item.Role != "link") {
			continue
		}
		if set.Has(intent.LoginAction) {
			ev.LoginButton = true
		}
		if set.Has(intent.ApplyEntry) {
			ev.ApplyCTA = true
		}
	}
	if textIntents.Has(intent.LoginAction) {
		ev.LoginButton = true
	}
	return ev
}

// AssessManual решает, нужен ли человек: капча, форма входа или слабый текстовый сигнал.
func AssessManual(text string, ev ManualEvidence) ManualAssessment {
	lower := strings.ToLower(text)
	out := ManualAssessment{Evidence: ev}

	switch {
	case ev.CaptchaVisible || ev.CaptchaText:
		out.Required = true
		out.Reason = "captcha"
		if ev.CaptchaSelector != "" {
			out.Reason = "captcha: " + ev.CaptchaSelector
		}
		out.Confidence = confidenceCaptcha
	case ev.PasswordInput && ev.LoginButton:
		out.Required = true
		out.Reason = "login form with password input"
		out.Confidence = confidenceLogin
	case ev.ApplyCTA && !ev.PasswordInput:
		// баннер "Sign in to save this job" на странице вакансии
		out.Reason = "apply entry visible, login text ignored"
	case !ev.ApplyCTA && containsAny(lower, loginWords) && containsAny(lower, verifyWords):
		out.Required = true
		out.Reason = "login text with password or verification keywords"
		out.Confidence = confidenceWeak
	}
	return out
}

type PageState string

const (
	StateManualGate PageState = "manual_gate"
	StateJobDetail  PageState = "job_detail_with_apply"
	StateForm       PageState = "application_or_form_page"
)

var formRoles = map[string]bool{
	"textbox":    true,
	"combobox":   true,
	"checkbox":   true,
	"radio":      true,
	"file_input": true,
}

// ClassifyPage страница вакансии с кнопкой Apply или уже форма заявки.
func ClassifyPage(snap snapshot.Snapshot, ev ManualEvidence, manualRequired bool, currentURL string) PageState {
	if manualRequired {
		return StateManualGate
	}
	if applicationURL(currentURL) || strings.Contains(strings.ToLower(currentURL), "greenhouse.io") {
		return StateForm
	}

	formItems := 0
	for _, item := range snap.Items {
		if formRoles[item.Role] && (item.InForm || item.Required) {
			formItems++
		}
	}
	if ev.ApplyCTA && formItems < 2 {
		return StateJobDetail
	}
	return StateForm
}

var applySkipWords = []string{"replace", "upload", "autofill", "tailor", "settings", "profile", "close"}

// ApplyEntryCandidate кнопка входа в заявку на странице вакансии: сначала кнопки, затем короткие подписи.
func ApplyEntryCandidate(snap snapshot.Snapshot, refIntents map[string]intent.Set, currentURL string) (page.Element, bool) {
	if applicationURL(currentURL) {
		return page.Element{}, false
	}

	var candidates []page.Element
	for _, item := range snap.Items {
		if item.Role != "button" && item.Role != "link" {
			continue
		}
		if !refIntents[item.Ref].Has(intent.ApplyEntry) {
			continue
		}
		if containsAny(strings.ToLower(item.Name), applySkipWords) {
			continue
		}
		candidates = append(candidates, item)
	}
	if len(candidates) == 0 {
		return page.Element{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		bi, bj := candidates[i].Role == "button", candidates[j].Role == "button"
		if bi != bj {
			return bi
		}
		return len(candidates[i].Name) < len(candidates[j].Name)
	})
	return candidates[0], true
}

func applicationURL(u string) bool {
	lower := strings.ToLower(u)
	return strings.Contains(lower, "/application") || strings.Contains(lower, "/apply")
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
