// Package names generates memorable run names so runs are easier to
// tell apart than raw uuids.
package names

import (
	"fmt"
	"math/rand"
	"time"
)

var adjectives = []string{
	"agile", "bold", "brisk", "bright", "calm", "clever", "crisp", "daring",
	"deft", "eager", "fearless", "fierce", "fleet", "focused", "gallant",
	"gritty", "hardy", "hearty", "keen", "lucid", "mighty", "nimble",
	"noble", "patient", "quick", "rapid", "ready", "resolute", "robust",
	"rugged", "savvy", "serene", "sharp", "shrewd", "solid", "spry",
	"steady", "stoic", "sturdy", "swift", "tidy", "tough", "trusty",
	"valiant", "vivid", "wily", "zesty", "zippy",
}

var vessels = []string{
	"barque", "brig", "caravel", "clipper", "corvette", "cutter", "dinghy",
	"dory", "dreadnought", "frigate", "galleon", "galley", "ironclad",
	"ketch", "launch", "lugger", "packet", "pinnace", "schooner", "skiff",
	"sloop", "tender", "trawler", "yawl",
}

// RandomRunName returns a kebab-case adjective/vessel combo. A nil rng
// uses a time-seeded source.
func RandomRunName(rng *rand.Rand) string {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return fmt.Sprintf("%s-%s",
		adjectives[rng.Intn(len(adjectives))],
		vessels[rng.Intn(len(vessels))],
	)
}
