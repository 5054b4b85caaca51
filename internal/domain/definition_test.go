package domain

import "testing"

func TestEffectiveFilter(t *testing.T) {
	def := DownloadDefinition{
		Files:         []string{"a.nc"},
		FilenameRegex: "",
	}

	t.Run("source overrides with its own files", func(t *testing.T) {
		src := CatalogueSource{Files: []string{"b.nc"}}
		files, regex := def.EffectiveFilter(src)
		if len(files) != 1 || files[0] != "b.nc" || regex != "" {
			t.Errorf("got files=%v regex=%q", files, regex)
		}
	})

	t.Run("falls back to definition filter", func(t *testing.T) {
		src := CatalogueSource{}
		files, regex := def.EffectiveFilter(src)
		if len(files) != 1 || files[0] != "a.nc" || regex != "" {
			t.Errorf("got files=%v regex=%q", files, regex)
		}
	})

	t.Run("source regex overrides definition files", func(t *testing.T) {
		src := CatalogueSource{FilenameRegex: "^chl_.*\\.nc$"}
		files, regex := def.EffectiveFilter(src)
		if len(files) != 0 || regex != "^chl_.*\\.nc$" {
			t.Errorf("got files=%v regex=%q", files, regex)
		}
	})
}
