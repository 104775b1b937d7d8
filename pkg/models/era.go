package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicateEra = errors.New("duplicate era id")
	ErrInvalidEra   = errors.New("invalid era")
)

// Era is a selectable destination in the booth.
type Era struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
}

// Catalog is an ordered, read-only set of eras. Registration order is
// display order.
type Catalog struct {
	eras  []Era
	index map[string]int
}

func NewCatalog() *Catalog {
	return &Catalog{
		index: make(map[string]int),
	}
}

func (c *Catalog) Register(era Era) error {
	if strings.TrimSpace(era.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidEra)
	}
	if strings.TrimSpace(era.Prompt) == "" {
		return fmt.Errorf("%w: %s has no prompt", ErrInvalidEra, era.ID)
	}
	if _, ok := c.index[era.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEra, era.ID)
	}
	c.index[era.ID] = len(c.eras)
	c.eras = append(c.eras, era)
	return nil
}

func (c *Catalog) Get(id string) (Era, bool) {
	i, ok := c.index[id]
	if !ok {
		return Era{}, false
	}
	return c.eras[i], true
}

func (c *Catalog) List() []Era {
	out := make([]Era, len(c.eras))
	copy(out, c.eras)
	return out
}

func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.eras))
	for _, era := range c.eras {
		ids = append(ids, era.ID)
	}
	return ids
}

func (c *Catalog) Len() int {
	return len(c.eras)
}

func mustRegister(c *Catalog, era Era) {
	if err := c.Register(era); err != nil {
		panic(err)
	}
}

func DefaultCatalog() *Catalog {
	c := NewCatalog()

	mustRegister(c, Era{
		ID:          "ancient-egypt",
		Name:        "Ancient Egypt",
		Description: "Pharaohs, pyramids, and golden sands.",
		Prompt:      "Ancient Egypt, wearing royal Egyptian robes and gold jewelry, standing in front of the Great Sphinx and Pyramids with warm desert lighting.",
		Icon:        "🏛️",
		Color:       "from-yellow-600 to-amber-800",
	})

	mustRegister(c, Era{
		ID:          "victorian-london",
		Name:        "Victorian London",
		Description: "Cobblestone streets, fog, and top hats.",
		Prompt:      "Victorian London, wearing elegant 19th-century formal attire, standing on a foggy cobblestone street with gas lamps and Big Ben in the background.",
		Icon:        "🎩",
		Color:       "from-gray-700 to-gray-900",
	})

	mustRegister(c, Era{
		ID:          "roaring-20s",
		Name:        "Roaring 20s",
		Description: "Jazz, glitz, and Art Deco glamour.",
		Prompt:      "The Roaring 1920s, wearing a Great Gatsby style suit or flapper dress, at a lavish Art Deco party with champagne and jazz musicians in the background.",
		Icon:        "🎷",
		Color:       "from-purple-600 to-indigo-900",
	})

	mustRegister(c, Era{
		ID:          "cyberpunk-2077",
		Name:        "Cyberpunk 2077",
		Description: "Neon lights, high-tech, and dystopian vibes.",
		Prompt:      "Cyberpunk future city, wearing futuristic tech-wear with glowing neon accents, standing in a rainy street filled with holograms and flying cars.",
		Icon:        "🦾",
		Color:       "from-pink-500 to-cyan-600",
	})

	mustRegister(c, Era{
		ID:          "wild-west",
		Name:        "Wild West",
		Description: "Cowboys, saloons, and dusty frontiers.",
		Prompt:      "The Wild West, wearing cowboy gear with a leather hat and vest, standing outside a wooden saloon in a dusty frontier town at high noon.",
		Icon:        "🤠",
		Color:       "from-orange-700 to-red-900",
	})

	mustRegister(c, Era{
		ID:          "medieval-knight",
		Name:        "Medieval Kingdom",
		Description: "Castles, armor, and epic quests.",
		Prompt:      "Medieval era, wearing shining silver plate armor or royal velvet robes, standing in the courtyard of a massive stone castle with banners flying.",
		Icon:        "⚔️",
		Color:       "from-slate-600 to-slate-800",
	})

	mustRegister(c, Era{
		ID:          "space-explorer",
		Name:        "Deep Space",
		Description: "Astronauts, alien worlds, and starlight.",
		Prompt:      "Sci-fi deep space, wearing a high-tech sleek spacesuit, standing on the surface of an alien planet with ringed planets and a colorful nebula in the sky.",
		Icon:        "🚀",
		Color:       "from-blue-700 to-violet-900",
	})

	mustRegister(c, Era{
		ID:          "prehistoric",
		Name:        "Prehistoric",
		Description: "Dinosaurs, jungles, and survival.",
		Prompt:      "Prehistoric era, wearing rugged fur clothing, standing in a lush primeval jungle with a friendly triceratops in the background.",
		Icon:        "🦕",
		Color:       "from-green-700 to-emerald-900",
	})

	return c
}
