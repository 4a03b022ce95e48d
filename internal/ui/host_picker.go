package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/remoteops/pkg/sshutil"
)

// hostItem adapts an ssh config entry to list.Item.
type hostItem struct {
	host sshutil.SSHHostEntry
}

func (i hostItem) Title() string       { return i.host.Alias }
func (i hostItem) Description() string { return i.host.Description() }

// FilterValue matches on alias, hostname and user.
func (i hostItem) FilterValue() string {
	fields := []string{i.host.Alias, i.host.Hostname, i.host.User}
	return strings.Join(strings.Fields(strings.Join(fields, " ")), " ")
}

var (
	pickKey   = key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "connect"))
	cancelKey = key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q/esc", "cancel"))
)

// HostPickerModel lets the user choose the target of a single operation
// when --host was omitted.
type HostPickerModel struct {
	list     list.Model
	selected *sshutil.SSHHostEntry
	done     bool
}

// NewHostPickerModel creates a picker over hosts.
func NewHostPickerModel(hosts []sshutil.SSHHostEntry) HostPickerModel {
	items := make([]list.Item, 0, len(hosts))
	for _, h := range hosts {
		items = append(items, hostItem{host: h})
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(ColorPrimary).
		BorderForeground(ColorSecondary)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.Foreground(ColorMuted)

	l := list.New(items, delegate, 80, 15)
	l.Title = "Which host?"
	l.Styles.Title = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	l.AdditionalShortHelpKeys = func() []key.Binding { return []key.Binding{pickKey} }

	return HostPickerModel{list: l}
}

// Init implements tea.Model.
func (m HostPickerModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model. Keys go to the filter input while the user
// is typing a filter.
func (m HostPickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if size, ok := msg.(tea.WindowSizeMsg); ok {
		m.list.SetSize(size.Width, size.Height-1)
	}

	if k, ok := msg.(tea.KeyMsg); ok && m.list.FilterState() != list.Filtering {
		switch {
		case key.Matches(k, pickKey):
			if item, ok := m.list.SelectedItem().(hostItem); ok {
				host := item.host
				m.selected = &host
			}
			m.done = true
			return m, tea.Quit
		case key.Matches(k, cancelKey):
			m.done = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m HostPickerModel) View() string {
	if m.done {
		return ""
	}
	return m.list.View()
}

// Selected returns the chosen host, or nil if cancelled.
func (m HostPickerModel) Selected() *sshutil.SSHHostEntry {
	return m.selected
}

// PickHost runs the picker on the given terminal streams. It returns nil
// when the user cancels or there is nothing to pick.
func PickHost(hosts []sshutil.SSHHostEntry, output io.Writer, input io.Reader) (*sshutil.SSHHostEntry, error) {
	if len(hosts) == 0 {
		return nil, nil
	}

	final, err := tea.NewProgram(NewHostPickerModel(hosts),
		tea.WithOutput(output),
		tea.WithInput(input),
	).Run()
	if err != nil {
		return nil, fmt.Errorf("host picker: %w", err)
	}

	m, _ := final.(HostPickerModel)
	return m.Selected(), nil
}
