// Package styles provides consistent styling for the reservo CLI.
package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Color palette
var (
	Primary      = lipgloss.Color("#0EA5E9") // Sky
	PrimaryLight = lipgloss.Color("#7DD3FC")
	Secondary    = lipgloss.Color("#14B8A6") // Teal

	Success = lipgloss.Color("#10B981")
	Warning = lipgloss.Color("#F59E0B")
	Error   = lipgloss.Color("#EF4444")
	Info    = lipgloss.Color("#3B82F6")

	Text      = lipgloss.Color("#F9FAFB")
	TextMuted = lipgloss.Color("#9CA3AF")
	Surface   = lipgloss.Color("#1F2937")
	Border    = lipgloss.Color("#374151")
)

// Text and status styles. They are rebuilt by DisableColors.
var (
	Bold      lipgloss.Style
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Normal    lipgloss.Style
	Muted     lipgloss.Style
	Highlight lipgloss.Style
	Code      lipgloss.Style

	SuccessStyle lipgloss.Style
	WarningStyle lipgloss.Style
	ErrorStyle   lipgloss.Style
	InfoStyle    lipgloss.Style

	Box        lipgloss.Style
	BoxSuccess lipgloss.Style
	BoxError   lipgloss.Style
	BoxWarning lipgloss.Style
)

// Icons
const (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "⚠"
	IconInfo    = "ℹ"
	IconArrow   = "→"
	IconDot     = "•"
	IconPending = "◌"
)

func init() {
	build()
}

func newRoundedBox(borderColor lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Padding(0, 1)
}

func build() {
	Bold = lipgloss.NewStyle().Bold(true)
	Title = lipgloss.NewStyle().Bold(true).Foreground(Primary)
	Subtitle = lipgloss.NewStyle().Bold(true).Foreground(PrimaryLight)
	Normal = lipgloss.NewStyle().Foreground(Text)
	Muted = lipgloss.NewStyle().Foreground(TextMuted)
	Highlight = lipgloss.NewStyle().Bold(true).Foreground(Secondary)
	Code = lipgloss.NewStyle().Foreground(Warning).Background(Surface).Padding(0, 1)

	SuccessStyle = lipgloss.NewStyle().Foreground(Success)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	ErrorStyle = lipgloss.NewStyle().Foreground(Error)
	InfoStyle = lipgloss.NewStyle().Foreground(Info)

	Box = newRoundedBox(Border)
	BoxSuccess = newRoundedBox(Success)
	BoxError = newRoundedBox(Error)
	BoxWarning = newRoundedBox(Warning)
}

// FormatSuccess formats a success message with icon
func FormatSuccess(msg string) string {
	return SuccessStyle.Render(IconSuccess) + " " + Normal.Render(msg)
}

// FormatError formats an error message with icon
func FormatError(msg string) string {
	return ErrorStyle.Render(IconError) + " " + Normal.Render(msg)
}

// FormatWarning formats a warning message with icon
func FormatWarning(msg string) string {
	return WarningStyle.Render(IconWarning) + " " + Normal.Render(msg)
}

// FormatInfo formats an info message with icon
func FormatInfo(msg string) string {
	return InfoStyle.Render(IconInfo) + " " + Normal.Render(msg)
}

// FormatKeyValue formats a key-value pair
func FormatKeyValue(key, value string) string {
	keyStyle := lipgloss.NewStyle().Foreground(TextMuted).Width(20)
	return keyStyle.Render(key+":") + " " + Highlight.Render(value)
}

// OutcomeBadge renders a handling outcome as a colored badge.
func OutcomeBadge(outcome string) string {
	badge := lipgloss.NewStyle().Padding(0, 1)
	switch strings.ToLower(outcome) {
	case "success", "ok", "valid":
		badge = badge.Background(Success).Foreground(lipgloss.Color("#000000"))
	case "business", "warning", "invalid":
		badge = badge.Background(Warning).Foreground(lipgloss.Color("#000000"))
	case "technical", "error":
		badge = badge.Background(Error).Foreground(lipgloss.Color("#FFFFFF"))
	default:
		badge = badge.Background(Surface).Foreground(Text)
	}
	return badge.Render(outcome)
}

// Table collects rows and renders them with a rounded border.
type Table struct {
	headers []string
	rows    [][]string
}

// NewTable creates a table. Pass no headers for a key/value listing.
func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// AddRow appends a row.
func (t *Table) AddRow(values ...string) {
	t.rows = append(t.rows, values)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Render returns the formatted table.
func (t *Table) Render() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(Primary).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Foreground(Text).Padding(0, 1)

	tbl := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Border)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Rows(t.rows...)
	if len(t.headers) > 0 {
		tbl = tbl.Headers(t.headers...)
	}
	return tbl.Render()
}

// DisableColors disables all colors for terminals that don't support them
func DisableColors() {
	for _, c := range []*lipgloss.Color{
		&Primary, &PrimaryLight, &Secondary,
		&Success, &Warning, &Error, &Info,
		&Text, &TextMuted, &Surface, &Border,
	} {
		*c = lipgloss.Color("")
	}
	build()
}
