package blogpage

import (
	"io"
	"sync"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"
)

var (
	minifier *minify.M
	once     sync.Once
)

// getMinifier returns a configured HTML minifier (singleton)
func getMinifier() *minify.M {
	once.Do(func() {
		minifier = minify.New()
		minifier.Add("text/html", &html.Minifier{
			KeepDefaultAttrVals: true,
			KeepDocumentTags:    true,
			KeepEndTags:         true,
			KeepQuotes:          true,
		})
	})
	return minifier
}

// writeMinifiedHTML minifies src into w. On minifier failure the original is written.
func writeMinifiedHTML(w io.Writer, src []byte) error {
	out, err := getMinifier().Bytes("text/html", src)
	if err != nil {
		out = src
	}
	_, err = w.Write(out)
	return err
}
