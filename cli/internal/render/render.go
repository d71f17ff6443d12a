// Package render 负责终端输出：Markdown 渲染和彩色提示
package render

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	UserColor      = color.New(color.FgWhite, color.Bold)
	AIColor        = color.New(color.FgCyan)
	TitleColor     = color.New(color.FgMagenta, color.Bold)
	SeparatorColor = color.New(color.FgHiBlack)
	SuccessColor   = color.New(color.FgGreen)
	WarnColor      = color.New(color.FgYellow)
	ErrorColor     = color.New(color.FgRed)
	PromptColor    = color.New(color.FgHiBlue)
)

// 终端宽度取不到时使用的默认值
const defaultWidth = 100

// Width 当前终端宽度
func Width() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}

// Renderer Markdown 渲染器
type Renderer struct {
	glamour *glamour.TermRenderer
}

// NewRenderer 按终端宽度创建渲染器
// 参数:
//   - width: 折行宽度，<= 0 时使用当前终端宽度
func NewRenderer(width int) (*Renderer, error) {
	if width <= 0 {
		width = Width()
	}
	style := styles.DarkStyleConfig
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		style = styles.NoTTYStyleConfig
	}
	zero := uint(0)
	style.Document.Margin = &zero

	gr, err := glamour.NewTermRenderer(
		glamour.WithStyles(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	return &Renderer{glamour: gr}, nil
}

// Markdown 渲染 Markdown，失败时原样返回
func (r *Renderer) Markdown(content string) string {
	rendered, err := r.glamour.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(rendered, "\n")
}

// Message 输出一条带角色标题和时间的消息
func (r *Renderer) Message(w io.Writer, role, content string, ts time.Time) {
	header := roleLabel(role)
	if !ts.IsZero() {
		header += SeparatorColor.Sprintf("  🕒 %s", ts.Local().Format("15:04 • Jan 02, 2006"))
	}
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, r.Markdown(content))
	fmt.Fprintln(w)
}

func roleLabel(role string) string {
	switch role {
	case "user":
		return UserColor.Sprint("👤 You")
	case "assistant":
		return AIColor.Sprint("🤖 Assistant")
	}
	return TitleColor.Sprint("⚙️  " + role)
}

// Separator 输出分隔线
func Separator(w io.Writer) {
	width := Width()
	if width > 60 {
		width = 60
	}
	SeparatorColor.Fprintln(w, strings.Repeat("─", width))
}

// Errorf 输出错误到 stderr
func Errorf(format string, a ...interface{}) {
	ErrorColor.Fprintf(os.Stderr, "✗ "+format+"\n", a...)
}

// Successf 输出成功提示
func Successf(format string, a ...interface{}) {
	SuccessColor.Printf("✓ "+format+"\n", a...)
}

// Warnf 输出警告
func Warnf(format string, a ...interface{}) {
	WarnColor.Printf("⚠️  "+format+"\n", a...)
}
