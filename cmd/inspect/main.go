// Command inspect is a terminal explorer for a persisted knowledge
// graph (the JSON layout written by cmd/extract). The left pane lists
// entities; the right pane shows the selected entity's relations and
// their evidence spans. Press c to copy the selected entity's EID.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/narrative-kg/extract/pkg/graph"
	"github.com/narrative-kg/extract/pkg/graph/algorithms"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Padding(0, 1)

	detailBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(0, 1)

	predStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212"))

	evidenceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)

	copyNoticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// nodeItem adapts a graph.Node to the bubbles list contract.
type nodeItem struct {
	node graph.Node
}

func (i nodeItem) Title() string { return i.node.Label }
func (i nodeItem) Description() string {
	desc := i.node.Type
	if i.node.EID != 0 {
		desc += fmt.Sprintf(" · EID %d", i.node.EID)
	}
	if i.node.MentionCount > 0 {
		desc += fmt.Sprintf(" · %d mentions", i.node.MentionCount)
	}
	return desc
}
func (i nodeItem) FilterValue() string { return i.node.Label }

type model struct {
	data       *graph.KnowledgeGraphData
	kg         graph.KnowledgeGraph
	list       list.Model
	detail     viewport.Model
	edgesByID  map[string][]graph.Edge
	labelsByID map[string]string
	copied     bool
	width      int
	height     int
	ready      bool
}

func newModel(data *graph.KnowledgeGraphData) model {
	nodes := append([]graph.Node{}, data.Nodes...)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Label < nodes[j].Label })

	items := make([]list.Item, len(nodes))
	for i, n := range nodes {
		items[i] = nodeItem{node: n}
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Entities"
	l.SetShowStatusBar(false)

	edgesByID := make(map[string][]graph.Edge)
	for _, e := range data.Edges {
		edgesByID[e.Source] = append(edgesByID[e.Source], e)
		edgesByID[e.Target] = append(edgesByID[e.Target], e)
	}
	labelsByID := make(map[string]string, len(data.Nodes))
	for _, n := range data.Nodes {
		labelsByID[n.ID] = n.Label
	}

	return model{
		data:       data,
		kg:         graph.FromData(data),
		list:       l,
		edgesByID:  edgesByID,
		labelsByID: labelsByID,
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		listWidth := m.width / 3
		m.list.SetSize(listWidth, m.height-2)
		m.detail = viewport.New(m.width-listWidth-4, m.height-4)
		m.ready = true
		m.refreshDetail()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "c":
			if item, ok := m.list.SelectedItem().(nodeItem); ok && item.node.EID != 0 {
				if err := clipboard.WriteAll(fmt.Sprintf("%d", item.node.EID)); err == nil {
					m.copied = true
				}
			}
			return m, nil
		}
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	prevIndex := m.list.Index()
	m.list, cmd = m.list.Update(msg)
	cmds = append(cmds, cmd)

	if m.list.Index() != prevIndex {
		m.copied = false
		m.refreshDetail()
	}

	m.detail, cmd = m.detail.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *model) refreshDetail() {
	if !m.ready {
		return
	}
	item, ok := m.list.SelectedItem().(nodeItem)
	if !ok {
		m.detail.SetContent("no entity selected")
		return
	}
	m.detail.SetContent(m.renderDetail(item.node))
	m.detail.GotoTop()
}

func (m *model) renderDetail(node graph.Node) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s  [%s]\n", node.Label, node.Type)
	if node.EID != 0 {
		fmt.Fprintf(&b, "EID %d · AID %d · SP %v\n", node.EID, node.AID, node.SP)
	}
	if len(node.Aliases) > 0 {
		aliases := append([]string{}, node.Aliases...)
		sort.Strings(aliases)
		fmt.Fprintf(&b, "aliases: %s\n", strings.Join(aliases, ", "))
	}
	if len(node.Sources) > 0 {
		fmt.Fprintf(&b, "documents: %s\n", strings.Join(node.Sources, ", "))
	}
	b.WriteString("\n")

	edges := m.edgesByID[node.ID]
	if len(edges) == 0 {
		b.WriteString("no relations\n")
		return b.String()
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Type != edges[j].Type {
			return edges[i].Type < edges[j].Type
		}
		return edges[i].Weight > edges[j].Weight
	})

	for _, e := range edges {
		subj := m.labelsByID[e.Source]
		obj := m.labelsByID[e.Target]
		fmt.Fprintf(&b, "%s %s %s  (%.2f)\n",
			subj, predStyle.Render(e.Type), obj, e.Weight)
		for _, ev := range e.Evidence {
			text := ev.Text
			if len(text) > 100 {
				text = text[:100] + "…"
			}
			fmt.Fprintf(&b, "  %s\n", evidenceStyle.Render(
				fmt.Sprintf("%s [%d:%d] %s", ev.DocID, ev.Start, ev.End, text)))
		}
	}

	// Two-hop neighborhood via BFS, for a sense of where the entity sits
	// in the wider graph.
	traversal := algorithms.NewGraphTraversal(m.kg)
	if nearby, err := traversal.Traverse(context.Background(), node.ID, 3, algorithms.BFS, ""); err == nil && len(nearby) > 1 {
		b.WriteString("\nnearby: ")
		names := make([]string, 0, len(nearby)-1)
		for _, n := range nearby[1:] {
			names = append(names, n.Label)
		}
		sort.Strings(names)
		if len(names) > 12 {
			names = names[:12]
		}
		b.WriteString(strings.Join(names, ", "))
		b.WriteString("\n")
	}
	return b.String()
}

func (m model) View() string {
	if !m.ready {
		return "loading..."
	}

	header := titleStyle.Render("knowledge graph inspector")
	if m.copied {
		header += "  " + copyNoticeStyle.Render("✓ EID copied to clipboard")
	}

	body := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.list.View(),
		detailBorderStyle.Render(m.detail.View()),
	)
	help := helpStyle.Render("↑/↓ select · / filter · c copy EID · q quit")
	return lipgloss.JoinVertical(lipgloss.Left, header, body, help)
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: inspect <knowledge_graph.json>")
		os.Exit(2)
	}

	raw, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read graph: %v\n", err)
		os.Exit(1)
	}

	var data graph.KnowledgeGraphData
	if err := json.Unmarshal(raw, &data); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse graph: %v\n", err)
		os.Exit(1)
	}

	if _, err := tea.NewProgram(newModel(&data), tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "inspector failed: %v\n", err)
		os.Exit(1)
	}
}
