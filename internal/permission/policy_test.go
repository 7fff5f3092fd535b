package permission

import (
	"testing"

	"github.com/phonectl/phonectl/internal/action"
	"github.com/phonectl/phonectl/internal/config"
)

func TestDefaultPolicy_Check(t *testing.T) {
	p := NewDefaultPolicy(&config.PermissionConfig{
		SensitiveKeywords: config.DefaultSensitiveKeywords,
		DeniedApps:        []string{"支付宝"},
		DeniedActions:     []string{action.NameCallAPI},
	})

	tests := []struct {
		name string
		a    action.Action
		want Decision
	}{
		{"finish", action.Finish("done"), Allow},
		{"plain tap", action.Do(action.NameTap, map[string]string{"element": "[500,500]"}), Allow},
		{"launch", action.Do(action.NameLaunch, map[string]string{"app": "美团"}), Allow},
		{"denied app", action.Do(action.NameLaunch, map[string]string{"app": "支付宝"}), Deny},
		{"denied action", action.Do(action.NameCallAPI, map[string]string{"instruction": "x"}), Deny},
		{"tap with message", action.Do(action.NameTap, map[string]string{"element": "[500,900]", "message": "确认下单"}), NeedConfirmation},
		{"payment keyword", action.Do(action.NameType, map[string]string{"text": "Pay now"}), NeedConfirmation},
		{"chinese keyword", action.Do(action.NameType, map[string]string{"text": "立即支付"}), NeedConfirmation},
		{"keyword inside word", action.Do(action.NameType, map[string]string{"text": "display settings"}), Allow},
		{"takeover", action.Do(action.NameTakeover, map[string]string{"message": "请登录"}), Allow},
		{"note flag", action.Do(action.NameNote, map[string]string{"message": "True"}), Allow},
	}
	for _, tt := range tests {
		if got := p.Check(tt.a); got != tt.want {
			t.Errorf("%s: Check() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestDefaultPolicy_NilConfigUsesDefaults(t *testing.T) {
	p := NewDefaultPolicy(nil)
	a := action.Do(action.NameType, map[string]string{"text": "checkout"})
	if got := p.Check(a); got != NeedConfirmation {
		t.Errorf("Check() = %v, want %v", got, NeedConfirmation)
	}
}

func TestDefaultPolicy_EmptyKeywordList(t *testing.T) {
	p := NewDefaultPolicy(&config.PermissionConfig{SensitiveKeywords: []string{}})
	a := action.Do(action.NameType, map[string]string{"text": "checkout"})
	if got := p.Check(a); got != Allow {
		t.Errorf("Check() = %v, want %v", got, Allow)
	}
	// A model-attached confirmation message still counts.
	a = action.Do(action.NameTap, map[string]string{"element": "[1,1]", "message": "sure?"})
	if got := p.Check(a); got != NeedConfirmation {
		t.Errorf("Check() = %v, want %v", got, NeedConfirmation)
	}
}

func TestDecision_String(t *testing.T) {
	tests := map[Decision]string{Allow: "allow", Deny: "deny", NeedConfirmation: "confirm", Decision(9): "unknown"}
	for d, want := range tests {
		if got := d.String(); got != want {
			t.Errorf("Decision(%d).String() = %q, want %q", d, got, want)
		}
	}
}
