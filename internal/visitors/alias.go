// Package visitors derives display names and fallback ids for anonymous visitors.
package visitors

import "hash/fnv"

var adjectives = []string{
	"Curious", "Happy", "Clever", "Wise", "Playful", "Brave", "Swift", "Gentle", "Smart", "Busy",
	"Daring", "Bold", "Lively", "Vibrant", "Agile", "Nimble", "Quick", "Bright", "Radiant", "Cheerful",
	"Jolly", "Merry", "Creative", "Elegant", "Graceful", "Friendly", "Kind", "Warm", "Calm", "Serene",
	"Quiet", "Mellow", "Sunny", "Witty", "Keen", "Noble", "Plucky", "Snappy", "Zesty", "Cosmic",
}

var animals = []string{
	"Panda", "Fox", "Owl", "Otter", "Lion", "Eagle", "Deer", "Raven", "Beaver", "Koala",
	"Sloth", "Hamster", "Badger", "Bear", "Penguin", "Kangaroo", "Parrot", "Giraffe", "Heron", "Raccoon",
	"Lynx", "Marmot", "Meerkat", "Rabbit", "Hedgehog", "Tiger", "Wolf", "Falcon", "Dolphin", "Whale",
	"Seal", "Walrus", "Crab", "Octopus", "Turtle", "Finch", "Sparrow", "Swan", "Crane", "Puffin",
}

// Alias returns a stable "Adjective Animal" name for a visitor id.
func Alias(visitorID string) string {
	h := fnv.New32a()
	h.Write([]byte(visitorID))
	index := int(h.Sum32())

	adj := adjectives[index%len(adjectives)]
	animal := animals[(index/len(adjectives))%len(animals)]
	return adj + " " + animal
}
