package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/elliotchance/orderedmap/v2"
)

type Catalogs struct {
	Blocks BlockCatalog
}

// BlockCatalog keeps blocks.json order: the palette is shown to renderers in file order.
type BlockCatalog struct {
	Defs       *orderedmap.OrderedMap[string, BlockDef]
	ByCode     map[uint16]string
	DefsDigest string
}

type BlockDef struct {
	ID    string `json:"id"`
	Code  uint16 `json:"code"`
	Solid bool   `json:"solid"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadBlocks(filepath.Join(configDir, "blocks.json"), &c.Blocks); err != nil {
		return nil, err
	}
	return &c, nil
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
	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	cat, err := NewBlockCatalog(defs)
	if err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	cat.DefsDigest = sha256Hex(raw)
	*out = cat
	return nil
}

func NewBlockCatalog(defs []BlockDef) (BlockCatalog, error) {
	cat := BlockCatalog{
		Defs:   orderedmap.NewOrderedMap[string, BlockDef](),
		ByCode: map[uint16]string{},
	}
	for _, d := range defs {
		if d.ID == "" {
			return cat, fmt.Errorf("empty id")
		}
		if _, dup := cat.Defs.Get(d.ID); dup {
			return cat, fmt.Errorf("duplicate id %s", d.ID)
		}
		if other, dup := cat.ByCode[d.Code]; dup {
			return cat, fmt.Errorf("code %d used by %s and %s", d.Code, other, d.ID)
		}
		cat.Defs.Set(d.ID, d)
		cat.ByCode[d.Code] = d.ID
	}
	if air, ok := cat.Defs.Get("AIR"); !ok || air.Code != 0 {
		return cat, fmt.Errorf("AIR must exist with code 0")
	}
	return cat, nil
}

// Code returns the type code for a block id.
func (c BlockCatalog) Code(id string) (uint16, bool) {
	d, ok := c.Defs.Get(id)
	return d.Code, ok
}

// Palette lists block ids in file order.
func (c BlockCatalog) Palette() []string {
	return c.Defs.Keys()
}

// CheckThreshold verifies that every def's solid flag agrees with the code threshold.
func (c BlockCatalog) CheckThreshold(threshold uint16) error {
	for el := c.Defs.Front(); el != nil; el = el.Next() {
		d := el.Value
		if d.Code == 0 {
			continue
		}
		if d.Solid != (d.Code > threshold) {
			return fmt.Errorf("block %s: code %d solid=%v disagrees with threshold %d", d.ID, d.Code, d.Solid, threshold)
		}
	}
	return nil
}
