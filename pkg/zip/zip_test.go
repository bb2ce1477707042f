package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestArchiveAssetsKeepsOrderAndContent(t *testing.T) {
	assets := []Asset{
		{Filename: "01-first.png", MIME: "image/png", Data: []byte("one")},
		{Filename: "02-second.txt", MIME: "text/plain", Data: []byte("two two")},
	}
	data, err := ArchiveAssets(assets)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("entries = %d, want 2", len(zr.File))
	}
	for i, f := range zr.File {
		if f.Name != assets[i].Filename {
			t.Fatalf("entry %d = %s, want %s", i, f.Name, assets[i].Filename)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		got, _ := io.ReadAll(rc)
		rc.Close()
		if !bytes.Equal(got, assets[i].Data) {
			t.Fatalf("content of %s = %q", f.Name, got)
		}
	}
	if zr.File[0].Method != zip.Store || zr.File[1].Method != zip.Deflate {
		t.Fatalf("unexpected methods %d/%d", zr.File[0].Method, zr.File[1].Method)
	}
}

func TestArchiveAssetsRejectsDuplicates(t *testing.T) {
	_, err := ArchiveAssets([]Asset{{Filename: "a.png"}, {Filename: "a.png"}})
	if err == nil {
		t.Fatal("expected duplicate entry error")
	}
}
