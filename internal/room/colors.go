package room

import "hash/fnv"

// Cursor/avatar colors, one per participant. The palette is larger than the
// default participant cap, so collisions only appear when the cap is raised
// past it; the hash fallback keeps assignment deterministic and is cosmetic
// only.
var colorPalette = []string{
	"#e06c75", // red
	"#61afef", // blue
	"#98c379", // green
	"#e5c07b", // yellow
	"#c678dd", // purple
	"#56b6c2", // cyan
	"#d19a66", // orange
	"#be5046", // dark red
	"#528bff", // bright blue
	"#7f848e", // gray
}

// assignColor picks the first palette color not already in use. With the
// palette exhausted it hashes the user ID to a slot instead.
func assignColor(used map[string]bool, userID string) string {
	for _, c := range colorPalette {
		if !used[c] {
			return c
		}
	}
	h := fnv.New32a()
	h.Write([]byte(userID))
	return colorPalette[int(h.Sum32())%len(colorPalette)]
}
