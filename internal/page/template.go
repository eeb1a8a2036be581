package page

import (
	"bytes"
	"context"
	_ "embed"
	"html/template"
	"sync"

	"github.com/dmorgan81/imagine/internal/controller"
	"github.com/dmorgan81/imagine/internal/log"
	"github.com/samber/do"
)

//go:embed assets/index.html
var indexTmpl string

type Params struct {
	Prompt  string
	State   string
	Image   template.URL
	Visible bool
}

// FromSnapshot maps a controller snapshot onto the page. The image ref is trusted:
// it was produced by our own display handle, and data: URLs would otherwise be
// filtered by html/template.
func FromSnapshot(snap controller.Snapshot) Params {
	return Params{
		Prompt:  snap.Prompt,
		State:   snap.State.String(),
		Image:   template.URL(snap.Image),
		Visible: snap.ImageVisible(),
	}
}

type Templator struct {
	tmpl *template.Template
	once sync.Once
}

func NewTemplator(*do.Injector) (*Templator, error) {
	return &Templator{}, nil
}

func (g *Templator) Template(ctx context.Context, params Params) ([]byte, error) {
	g.once.Do(func() {
		g.tmpl = template.Must(template.New("index").Parse(indexTmpl))
	})

	log.FromContextOrDiscard(ctx).WithGroup("templator").Debug("rendering page", "state", params.State)

	var data bytes.Buffer
	if err := g.tmpl.Execute(&data, params); err != nil {
		return nil, err
	}
	return data.Bytes(), nil
}
