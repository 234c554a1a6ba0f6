package render

import (
	"html/template"
	"io"
	"sort"
	"strings"
)

const HomeURL = "https://yandex.ru"

// LogoOptions configure the branding block shown next to search results.
// Background is white, red or black; anything else falls back to white.
// A non-empty Style replaces the default style entirely, font color included.
type LogoOptions struct {
	Background string
	FullPage   bool
	Title      string
	Style      map[string]string
}

var defaultStyle = [][2]string{
	{"float", "left"},
	{"padding", "10px"},
	{"width", "120 px"},
	{"font-size", "12pt"},
}

var logoTemplates = template.Must(template.Must(template.New("div").Parse(
	`<div style="background: {{.Background}}; {{.Style}}"><a href="{{.Home}}"><img src="{{.Image}}" /></a>  {{.Found}}</div>`,
)).New("page").Parse(`<!DOCTYPE html>
<html>
 <head>
  <meta charset="utf-8">
  <title>{{.Title}}</title>
  <style>
   .layer1 {
    background: {{.Background}};
    {{.Style}}
   }
  </style>
 </head>
 <body><div class="layer1"><a href="{{.Home}}"><img src="{{.Image}}" /></a>  {{.Found}}</div></body>
</html>
`))

type logoData struct {
	Title      string
	Background template.CSS
	Style      template.CSS
	Home       string
	Image      string
	Found      string
}

// Logo пишет HTML блок (или целую страницу) с логотипом и числом найденного.
func Logo(w io.Writer, foundHuman string, opts LogoOptions) error {
	bg := background(opts.Background)
	data := logoData{
		Title:      opts.Title,
		Background: template.CSS(bg),
		Style:      template.CSS(style(bg, opts.Style)),
		Home:       HomeURL,
		Image:      LogoAsset(bg),
		Found:      foundHuman,
	}

	name := "div"
	if opts.FullPage {
		name = "page"
	}
	return logoTemplates.ExecuteTemplate(w, name, data)
}

// LogoAsset - путь к картинке логотипа под цвет фона
func LogoAsset(bg string) string {
	return "assets/yandex-for-" + background(bg) + "-background.png"
}

func background(bg string) string {
	switch bg {
	case "red", "black":
		return bg
	}
	return "white"
}

func style(bg string, custom map[string]string) string {
	if len(custom) > 0 {
		keys := make([]string, 0, len(custom))
		for k := range custom {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+custom[k])
		}
		return strings.Join(parts, "; ")
	}

	parts := make([]string, 0, len(defaultStyle)+1)
	for _, kv := range defaultStyle {
		parts = append(parts, kv[0]+": "+kv[1])
	}
	color := "white"
	if bg == "white" {
		color = "black"
	}
	parts = append(parts, "color: "+color)
	return strings.Join(parts, "; ")
}
