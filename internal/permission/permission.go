// Package permission decides whether a proposed action may run directly,
// must be confirmed by a human first, or is refused outright.
package permission

import "github.com/phonectl/phonectl/internal/action"

// Decision 是权限检查的结果
type Decision int

const (
	Allow            Decision = iota // 直接执行
	Deny                             // 拒绝执行
	NeedConfirmation                 // 需要用户确认
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	case NeedConfirmation:
		return "confirm"
	default:
		return "unknown"
	}
}

// Policy 决定某个动作是否需要确认
type Policy interface {
	Check(a action.Action) Decision
}
