package permission

import (
	"strings"

	"github.com/phonectl/phonectl/internal/action"
	"github.com/phonectl/phonectl/internal/config"
)

// DefaultPolicy 基于配置的默认权限策略
type DefaultPolicy struct {
	sensitiveKeywords []string
	deniedApps        map[string]bool
	deniedActions     map[string]bool
}

// NewDefaultPolicy builds a policy from config. A nil config yields the
// built-in purchase/payment keyword list.
func NewDefaultPolicy(cfg *config.PermissionConfig) *DefaultPolicy {
	p := &DefaultPolicy{
		deniedApps:    make(map[string]bool),
		deniedActions: make(map[string]bool),
	}
	keywords := config.DefaultSensitiveKeywords
	if cfg != nil {
		if cfg.SensitiveKeywords != nil {
			keywords = cfg.SensitiveKeywords
		}
		for _, a := range cfg.DeniedApps {
			p.deniedApps[strings.ToLower(a)] = true
		}
		for _, a := range cfg.DeniedActions {
			p.deniedActions[a] = true
		}
	}
	for _, k := range keywords {
		if k = strings.TrimSpace(strings.ToLower(k)); k != "" {
			p.sensitiveKeywords = append(p.sensitiveKeywords, k)
		}
	}
	return p
}

// Check 检查动作的权限
func (p *DefaultPolicy) Check(a action.Action) Decision {
	if a.IsFinish() {
		return Allow
	}

	if p.deniedActions[a.Name] {
		return Deny
	}
	if a.Name == action.NameLaunch && p.deniedApps[strings.ToLower(a.Param("app"))] {
		return Deny
	}

	if p.IsSensitive(a) {
		return NeedConfirmation
	}
	return Allow
}

// IsSensitive reports whether applying a would have consequences a user
// must approve: the model attached a confirmation message to it, or its
// name or arguments mention a purchase or payment.
//
// Take_over carries its instruction in message too, but it is handled by
// the takeover gate instead. Note uses message as a flag.
func (p *DefaultPolicy) IsSensitive(a action.Action) bool {
	if a.Kind != action.KindDo || a.RequiresTakeover() {
		return false
	}
	if a.Name != action.NameNote && strings.TrimSpace(a.Message()) != "" {
		return true
	}

	text := strings.ToLower(a.Name)
	for _, v := range a.Params {
		text += " " + strings.ToLower(v)
	}
	for _, k := range p.sensitiveKeywords {
		if containsKeyword(text, k) {
			return true
		}
	}
	return false
}

// containsKeyword matches ASCII keywords on word boundaries ("pay" must
// not match "display") and everything else as a substring.
func containsKeyword(text, keyword string) bool {
	if !isASCII(keyword) {
		return strings.Contains(text, keyword)
	}
	for start := 0; ; {
		i := strings.Index(text[start:], keyword)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(keyword)
		if (i == 0 || !isWordByte(text[i-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		start = i + 1
	}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}
