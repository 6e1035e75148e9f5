package panel

import (
	"context"
	"errors"
	"strings"
	"testing"

	"trenko-panel/internal/actions"
	"trenko-panel/internal/policy"
	"trenko-panel/internal/session"
)

const (
	anchorSelector    = `button[data-testid="card-back-labels-button"]`
	containerSelector = "section"
)

const cardPage = `<!doctype html><html><body>
<div class="card-back">
  <section class="sidebar-actions">
    <hgroup class=" hg-x1 "><h4 class="h4-x2">Add to card</h4></hgroup>
    <ul class="ul-x3">
      <li class="li-x4"><button class="btn-x5" data-testid="card-back-members-button">Members</button></li>
      <li class="li-x4"><button class="btn-x5" data-testid="card-back-labels-button">Labels</button></li>
    </ul>
  </section>
</div>
</body></html>`

const boardPage = `<!doctype html><html><body><div class="board"><section><h2>Lists</h2></section></div></body></html>`

func newDOM(t *testing.T, page string) *DocumentDOM {
	t.Helper()
	dom, err := NewDocumentDOM(strings.NewReader(page))
	if err != nil {
		t.Fatal(err)
	}
	return dom
}

func newInjector(dom DOM) *Injector {
	return NewInjector(dom, actions.NewCatalog(""), anchorSelector, containerSelector, Titles{Panel: "Trenko Actions", Section: "Trello Actions"})
}

func newRenderer(t *testing.T, dom DOM) *Renderer {
	t.Helper()
	cat := actions.NewCatalog("")
	p, err := policy.Compile(cat, "")
	if err != nil {
		t.Fatal(err)
	}
	return NewRenderer(dom, cat, p)
}

func TestReadStyles(t *testing.T) {
	styles, err := ReadStyles(cardPage)
	if err != nil {
		t.Fatal(err)
	}
	want := Styles{Group: "hg-x1", Heading: "h4-x2", List: "ul-x3", Item: "li-x4", Button: "btn-x5"}
	if styles != want {
		t.Errorf("got %+v, want %+v", styles, want)
	}

	empty, err := ReadStyles(`<section><p>nothing styled</p></section>`)
	if err != nil {
		t.Fatal(err)
	}
	if empty != (Styles{}) {
		t.Errorf("expected empty styles, got %+v", empty)
	}
}

func TestBuild(t *testing.T) {
	styles := Styles{Group: "g", Heading: "h", List: "l", Item: "i", Button: "b"}
	markup, err := Build(Titles{Panel: "Trenko <Actions>", Section: "Trello Actions"}, styles, actions.NewCatalog("").All())
	if err != nil {
		t.Fatal(err)
	}

	dom := newDOM(t, "<html><body>"+markup+"</body></html>")
	if dom.PanelCount() != 1 {
		t.Fatalf("expected one panel root, got %d", dom.PanelCount())
	}
	if !strings.Contains(markup, "Trenko &lt;Actions&gt;") {
		t.Errorf("expected escaped title in %s", markup)
	}

	buttons := dom.doc.Find(PanelSelector + " ul.l > li.i > button.b[type=button]")
	if buttons.Length() != 7 {
		t.Fatalf("expected 7 styled buttons, got %d", buttons.Length())
	}
	if len(dom.VisibleActions()) != 0 {
		t.Errorf("expected every item hidden initially, got %v", dom.VisibleActions())
	}
	headings := dom.doc.Find(PanelSelector + " hgroup.g > h4.h")
	if headings.Length() != 2 {
		t.Fatalf("expected two styled headings, got %d", headings.Length())
	}
	if got := headings.Last().Text(); got != "Trello Actions" {
		t.Errorf("expected closing section heading, got %q", got)
	}
	if dom.doc.Find(PanelSelector + " > ul + br + hgroup").Length() != 1 {
		t.Error("expected the section heading after the action list")
	}
}

func TestBuildWithoutSectionTitle(t *testing.T) {
	markup, err := Build(Titles{Panel: "Trenko Actions"}, Styles{}, actions.NewCatalog("").All())
	if err != nil {
		t.Fatal(err)
	}
	dom := newDOM(t, "<html><body>"+markup+"</body></html>")
	if n := dom.doc.Find(PanelSelector + " hgroup").Length(); n != 1 {
		t.Errorf("expected only the panel heading, got %d", n)
	}
	if dom.doc.Find(PanelSelector + " br").Length() != 0 {
		t.Error("unexpected separator without a section title")
	}
}

func TestInjectInsertsFirstChild(t *testing.T) {
	dom := newDOM(t, cardPage)
	handle, err := newInjector(dom).Inject(context.Background())
	if err != nil {
		t.Fatalf("inject: %v", err)
	}
	if !handle.Created {
		t.Error("expected panel to be created")
	}
	if handle.Styles.Button != "btn-x5" {
		t.Errorf("expected host button class, got %q", handle.Styles.Button)
	}

	first := dom.doc.Find("section.sidebar-actions").Children().First()
	if _, ok := first.Attr(PanelAttr); !ok {
		t.Error("expected panel to be the container's first child")
	}
}

func TestInjectTwiceAttachesOnePanel(t *testing.T) {
	dom := newDOM(t, cardPage)
	inj := newInjector(dom)
	ctx := context.Background()

	if _, err := inj.Inject(ctx); err != nil {
		t.Fatal(err)
	}
	handle, err := inj.Inject(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if handle.Created {
		t.Error("second inject must be a no-op")
	}
	if dom.PanelCount() != 1 {
		t.Errorf("expected exactly one panel, got %d", dom.PanelCount())
	}
}

func TestInjectHealsAfterHostReset(t *testing.T) {
	dom := newDOM(t, cardPage)
	inj := newInjector(dom)
	ctx := context.Background()

	if _, err := inj.Inject(ctx); err != nil {
		t.Fatal(err)
	}
	if err := dom.Reset(strings.NewReader(cardPage)); err != nil {
		t.Fatal(err)
	}
	handle, err := inj.Inject(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !handle.Created || dom.PanelCount() != 1 {
		t.Errorf("expected panel re-created after host reset, created=%v count=%d", handle.Created, dom.PanelCount())
	}
}

func TestInjectWithoutAnchor(t *testing.T) {
	dom := newDOM(t, boardPage)
	_, err := newInjector(dom).Inject(context.Background())
	if !errors.Is(err, ErrAnchorNotFound) {
		t.Errorf("expected ErrAnchorNotFound, got %v", err)
	}
	if dom.PanelCount() != 0 {
		t.Error("expected nothing inserted")
	}
}

func TestInjectWithoutContainer(t *testing.T) {
	page := `<html><body><div><button data-testid="card-back-labels-button">Labels</button></div></body></html>`
	_, err := newInjector(newDOM(t, page)).Inject(context.Background())
	if !errors.Is(err, ErrAnchorNotFound) {
		t.Errorf("expected ErrAnchorNotFound, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	dom := newDOM(t, cardPage)
	inj := newInjector(dom)
	ctx := context.Background()

	if err := inj.Remove(ctx); err != nil {
		t.Fatalf("remove without panel: %v", err)
	}
	if _, err := inj.Inject(ctx); err != nil {
		t.Fatal(err)
	}
	if err := inj.Remove(ctx); err != nil {
		t.Fatal(err)
	}
	if dom.PanelCount() != 0 {
		t.Error("expected panel removed")
	}
}

func TestRenderPerStatus(t *testing.T) {
	tests := []struct {
		status session.Status
		want   []actions.ID
	}{
		{session.CheckedOut, []actions.ID{actions.CheckIn, actions.Report}},
		{session.CheckedIn, []actions.ID{actions.AddToAgenda, actions.PostAgenda, actions.Report}},
		{session.AgendaPosted, []actions.ID{actions.ClockEffort, actions.AddBreak, actions.CheckOut, actions.Report}},
		{session.Unknown, []actions.ID{actions.Report}},
		{session.Status("garbage"), []actions.ID{actions.Report}},
	}

	dom := newDOM(t, cardPage)
	if _, err := newInjector(dom).Inject(context.Background()); err != nil {
		t.Fatal(err)
	}
	r := newRenderer(t, dom)

	// Run the table twice so every status is rendered from a different prior state.
	for pass := 0; pass < 2; pass++ {
		for _, tt := range tests {
			if _, err := r.Render(context.Background(), tt.status); err != nil {
				t.Fatal(err)
			}
			got := dom.VisibleActions()
			if len(got) != len(tt.want) {
				t.Errorf("pass %d %s: got %v, want %v", pass, tt.status, got, tt.want)
				continue
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("pass %d %s: got %v, want %v", pass, tt.status, got, tt.want)
					break
				}
			}
		}
	}
}

func TestRenderWithoutPanelIsHarmless(t *testing.T) {
	dom := newDOM(t, boardPage)
	visible, err := newRenderer(t, dom).Render(context.Background(), session.CheckedIn)
	if err != nil {
		t.Fatal(err)
	}
	if len(visible) != 3 {
		t.Errorf("expected policy result regardless of panel, got %v", visible)
	}
}
