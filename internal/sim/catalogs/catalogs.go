package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

type Catalogs struct {
	Blocks BlockCatalog
}

// BlockCatalog maps block ids to definitions. Palette index 0 is always AIR
// so a zero value in a palette-encoded store reads as empty space.
type BlockCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]BlockDef
	PaletteDigest string
	DefsDigest    string
}

type BlockDef struct {
	ID        string `json:"id"`
	Solid     bool   `json:"solid"`
	Breakable bool   `json:"breakable"`
	DropsItem string `json:"drops_item,omitempty"`
	// Fluid names the fluid this block holds, e.g. WATER.
	Fluid string `json:"fluid,omitempty"`
	// Crop is set for plant stages.
	Crop *CropDef `json:"crop,omitempty"`
}

type CropDef struct {
	Ripe bool `json:"ripe"`
	// GrowsInto is the next stage for unripe crops.
	GrowsInto string `json:"grows_into,omitempty"`
	// Replant is placed after a ripe crop is harvested.
	Replant string `json:"replant,omitempty"`
	Yield   int    `json:"yield,omitempty"`
}

const Air = "AIR"

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadBlocks(filepath.Join(configDir, "blocks.json"), &c.Blocks); err != nil {
		return nil, err
	}
	return &c, nil
}

func (b *BlockCatalog) Def(id string) (BlockDef, bool) {
	d, ok := b.Defs[id]
	return d, ok
}

func (b *BlockCatalog) ID(idx uint16) string {
	if int(idx) >= len(b.Palette) {
		return Air
	}
	return b.Palette[idx]
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadBlocks(path string, out *BlockCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return parseBlocks(raw, out)
}

func parseBlocks(raw []byte, out *BlockCatalog) error {
	out.DefsDigest = sha256Hex(raw)

	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	out.Defs = map[string]BlockDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("blocks.json: empty id")
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("blocks.json: duplicate id %s", d.ID)
		}
		out.Defs[d.ID] = d
	}
	if _, ok := out.Defs[Air]; !ok {
		return fmt.Errorf("blocks.json: missing AIR")
	}
	for _, d := range out.Defs {
		if d.Crop == nil {
			continue
		}
		for _, ref := range []string{d.Crop.GrowsInto, d.Crop.Replant} {
			if ref == "" {
				continue
			}
			if _, ok := out.Defs[ref]; !ok {
				return fmt.Errorf("blocks.json: %s references unknown block %s", d.ID, ref)
			}
		}
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		if id != Air {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	ids = append([]string{Air}, ids...)

	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}
