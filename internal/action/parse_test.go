package action

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Finish(t *testing.T) {
	a, err := Parse(`finish(message="已为你找到3家火锅店")`)
	require.NoError(t, err)
	assert.True(t, a.IsFinish())
	assert.Equal(t, "已为你找到3家火锅店", a.Message())
}

func TestParse_FinishInAnswerTags(t *testing.T) {
	a, err := Parse("<answer>finish(message='done')</answer>")
	require.NoError(t, err)
	assert.True(t, a.IsFinish())
	assert.Equal(t, "done", a.Message())
}

func TestParse_DoActions(t *testing.T) {
	tests := []struct {
		in     string
		name   string
		params map[string]string
	}{
		{`do(action="Launch", app="微信")`, NameLaunch, map[string]string{"app": "微信"}},
		{`do(action="Tap", element=[500, 320])`, NameTap, map[string]string{"element": "[500, 320]"}},
		{`do(action="Swipe", start=[500,800], end=[500,200])`, NameSwipe, map[string]string{"start": "[500,800]", "end": "[500,200]"}},
		{`do(action="Back")`, NameBack, map[string]string{}},
		{`do(action="Long Press", element=[10,20])`, NameLongPress, map[string]string{"element": "[10,20]"}},
		{`do(action="Wait", duration="2 seconds")`, NameWait, map[string]string{"duration": "2 seconds"}},
		{`do(action="Take_over", message="请输入验证码")`, NameTakeover, map[string]string{"message": "请输入验证码"}},
		{`do(action="Tap", element=[500,900], message="确认支付")`, NameTap, map[string]string{"element": "[500,900]", "message": "确认支付"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, KindDo, a.Kind)
			assert.Equal(t, tt.name, a.Name)
			assert.Equal(t, tt.params, a.Params)
			assert.Equal(t, tt.in, a.Raw)
		})
	}
}

func TestParse_TypeKeepsCommasAndQuotes(t *testing.T) {
	a, err := Parse(`do(action="Type", text="hello, "world" (again)")`)
	require.NoError(t, err)
	assert.Equal(t, NameType, a.Name)
	assert.Equal(t, `hello, "world" (again)`, a.Param("text"))
}

func TestParse_TypeName(t *testing.T) {
	a, err := Parse(`do(action="Type_Name", text="张三")`)
	require.NoError(t, err)
	assert.Equal(t, NameTypeName, a.Name)
	assert.Equal(t, "张三", a.Param("text"))
}

func TestParse_Errors(t *testing.T) {
	for _, in := range []string{
		"",
		"I think I should tap the button",
		`do(app="微信")`,
		`do(action="Tap", element=[1,2]`,
		`do(action="Launch", app="unterminated)`,
	} {
		_, err := Parse(in)
		if !errors.Is(err, ErrUnparsable) {
			t.Errorf("Parse(%q): expected ErrUnparsable, got %v", in, err)
		}
	}
}

func TestAction_StringRoundTrip(t *testing.T) {
	a := Do(NameTap, map[string]string{"element": "[500, 320]", "message": "pay"})
	assert.Equal(t, `do(action="Tap", element=[500, 320], message="pay")`, a.String())

	back, err := Parse(a.String())
	require.NoError(t, err)
	assert.Equal(t, a.Params, back.Params)
}

func TestParsePoint(t *testing.T) {
	p, err := ParsePoint("[500, 250.5]")
	require.NoError(t, err)
	assert.Equal(t, [2]float64{500, 250.5}, p)

	_, err = ParsePoint("[1200, 10]")
	assert.Error(t, err)
	_, err = ParsePoint("[1]")
	assert.Error(t, err)
	_, err = ParsePoint("[a, b]")
	assert.Error(t, err)
}

func TestRequiresTakeover(t *testing.T) {
	assert.True(t, Do(NameTakeover, nil).RequiresTakeover())
	assert.False(t, Do(NameTap, nil).RequiresTakeover())
	assert.False(t, Finish("x").RequiresTakeover())
}
