// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.renderInput(),
		m.renderStatusBar(),
	)
}

func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render(m.title)
	sub := "new conversation"
	if id := m.orch.Sessions().ResolveChatID(); id != "" {
		sub = "chat " + runewidth.Truncate(id, 12, "...")
	}
	line := title + "  " + m.theme.HeaderSubtitle.Render(sub)
	return m.theme.Header.Width(m.width).Render(line)
}

func (m Model) renderInput() string {
	if !m.acceptsInput() {
		return m.theme.InputContainer.Width(m.width).Render(
			m.spinner.View() + " " + m.theme.InputDisabled.Render("Waiting for the assistant..."))
	}
	return m.theme.InputContainer.Width(m.width).Render(m.input.View())
}

func (m Model) renderStatusBar() string {
	var left string
	if m.notice != "" {
		left = m.notice
	} else if req := m.orch.Active(); req != nil {
		left = m.spinner.View() + " " + req.Kind().String()
	}

	var hints []string
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		hints = append(hints, m.theme.ShortcutKey.Render(h.Key)+" "+m.theme.ShortcutDesc.Render(h.Desc))
	}
	right := strings.Join(hints, "  ")

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		return m.theme.StatusBar.Width(m.width).Render(left)
	}
	return m.theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderHelp() string {
	var b strings.Builder
	b.WriteString(m.theme.HeaderTitle.Render("Keys"))
	b.WriteString("\n\n")
	for _, group := range m.keys.FullHelp() {
		for _, k := range group {
			h := k.Help()
			b.WriteString("  ")
			b.WriteString(m.theme.ShortcutKey.Render(runewidth.FillRight(h.Key, 12)))
			b.WriteString(m.theme.ShortcutDesc.Render(h.Desc))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(m.theme.HeaderTitle.Render("Commands"))
	b.WriteString("\n\n")
	for _, c := range [][2]string{
		{"/N", "ask suggestion number N"},
		{"/replay", "reload the conversation from the server"},
		{"/reset", "start a new conversation"},
		{"/help", "toggle this help"},
		{"/quit", "leave"},
	} {
		b.WriteString("  ")
		b.WriteString(m.theme.ShortcutKey.Render(runewidth.FillRight(c[0], 12)))
		b.WriteString(m.theme.ShortcutDesc.Render(c[1]))
		b.WriteString("\n")
	}
	return b.String()
}
