package entropy

import "fmt"

type Class int

const (
	Low Class = iota
	Medium
	High
)

const (
	HighThreshold   = 7.5
	MediumThreshold = 6.0
)

// Classify maps an entropy value to a Class. Values exactly on a threshold
// fall into the lower class.
func Classify(e float64) Class {
	switch {
	case e > HighThreshold:
		return High
	case e > MediumThreshold:
		return Medium
	default:
		return Low
	}
}

func (c Class) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Description is the human readable interpretation printed after a result.
func (c Class) Description() string {
	switch c {
	case High:
		return "High entropy: The file may be compressed or encrypted."
	case Medium:
		return "Medium entropy: The file may contain some form of structured data."
	default:
		return "Low entropy: The file may contain mostly text or uncompressed data."
	}
}

func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Class) UnmarshalText(b []byte) error {
	switch string(b) {
	case "low":
		*c = Low
	case "medium":
		*c = Medium
	case "high":
		*c = High
	default:
		return fmt.Errorf("unknown entropy class: %q", string(b))
	}

	return nil
}
