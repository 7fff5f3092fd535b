package device

import (
	"sort"
	"strings"
)

// builtinApps 应用名称到包名的映射
var builtinApps = map[string]string{
	// Social & Messaging
	"微信": "com.tencent.mm",
	"QQ": "com.tencent.mobileqq",
	"微博": "com.sina.weibo",

	// E-commerce
	"淘宝":  "com.taobao.taobao",
	"京东":  "com.jingdong.app.mall",
	"拼多多": "com.xunmeng.pinduoduo",

	// Lifestyle
	"小红书": "com.xingin.xhs",
	"豆瓣":  "com.douban.frodo",
	"知乎":  "com.zhihu.android",

	// Maps & Navigation
	"高德地图": "com.autonavi.minimap",
	"百度地图": "com.baidu.BaiduMap",

	// Food & Services
	"美团":   "com.sankuai.meituan",
	"大众点评": "com.dianping.v1",
	"饿了么":  "me.ele",

	// Travel
	"携程":      "ctrip.android.view",
	"铁路12306": "com.MobileTicket",
	"12306":   "com.MobileTicket",
	"去哪儿":     "com.Qunar",
	"滴滴出行":    "com.sdu.didi.psnger",

	// Video & Entertainment
	"bilibili": "tv.danmaku.bili",
	"抖音":       "com.ss.android.ugc.aweme",
	"快手":       "com.smile.gifmaker",
	"腾讯视频":     "com.tencent.qqlive",
	"爱奇艺":      "com.qiyi.video",

	// Music & Audio
	"网易云音乐": "com.netease.cloudmusic",
	"QQ音乐":  "com.tencent.qqmusic",
	"喜马拉雅":  "com.ximalaya.ting.android",

	// Reading
	"番茄小说":   "com.dragon.read",
	"番茄免费小说": "com.dragon.read",
	"七猫免费小说": "com.kmxs.reader",

	// Productivity & AI
	"飞书": "com.ss.android.lark",
	"豆包": "com.larus.nova",

	// News
	"腾讯新闻": "com.tencent.news",
	"今日头条": "com.ss.android.article.news",

	// System
	"Settings": "com.android.settings",
	"设置":       "com.android.settings",
	"Chrome":   "com.android.chrome",
}

// Apps resolves app display names to package names.
type Apps struct {
	byName map[string]string
}

// NewApps returns the built-in table with extra entries added or overriding.
func NewApps(extra map[string]string) *Apps {
	a := &Apps{byName: make(map[string]string, len(builtinApps)+len(extra))}
	for k, v := range builtinApps {
		a.byName[k] = v
	}
	for k, v := range extra {
		a.byName[k] = v
	}
	return a
}

// Lookup returns the package for name. ASCII names match case-insensitively
// and a name that already looks like a package is returned as is.
func (a *Apps) Lookup(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if pkg, ok := a.byName[name]; ok {
		return pkg, true
	}
	for k, v := range a.byName {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	if looksLikePackage(name) {
		return name, true
	}
	return "", false
}

// NameOf returns the display name for pkg, or "" when unknown. Aliases of
// the same package resolve to the shortest name.
func (a *Apps) NameOf(pkg string) string {
	var best string
	for k, v := range a.byName {
		if v != pkg {
			continue
		}
		if best == "" || len(k) < len(best) || len(k) == len(best) && k < best {
			best = k
		}
	}
	return best
}

// Names returns all known app names, sorted.
func (a *Apps) Names() []string {
	names := make([]string, 0, len(a.byName))
	for k := range a.byName {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Packages returns the distinct known package names.
func (a *Apps) Packages() []string {
	seen := make(map[string]bool)
	var pkgs []string
	for _, v := range a.byName {
		if !seen[v] {
			seen[v] = true
			pkgs = append(pkgs, v)
		}
	}
	sort.Strings(pkgs)
	return pkgs
}

func looksLikePackage(s string) bool {
	if !strings.Contains(s, ".") || strings.ContainsAny(s, " /") {
		return false
	}
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			return false
		}
	}
	return true
}
