package record

// DefaultSeedTexts is the canonical seed used when a device starts without a
// prior sync.
var DefaultSeedTexts = []string{
	"hello from the phone",
	"remember the milk",
	"meeting at 10",
	"ping me later",
}

// Seed builds one record per text, in order, all stamped with the factory's
// clock. A nil texts slice means DefaultSeedTexts.
func Seed(f Factory, texts []string) []Record {
	if texts == nil {
		texts = DefaultSeedTexts
	}
	out := make([]Record, 0, len(texts))
	for _, text := range texts {
		out = append(out, f.NewNow(text))
	}
	return out
}
