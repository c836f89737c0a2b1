package personalkey

// wordlist holds 256 short, unambiguous English words, so each word carries
// 8 bits of entropy. Changing this list invalidates nothing that is stored
// (only fingerprints of normalized keys are retained), but keys already
// printed for users must stay typeable, so words are append-only.
var wordlist = [256]string{
	"acid", "acorn", "amber", "anchor", "anvil", "apple", "april", "arrow",
	"atlas", "attic", "autumn", "award", "badge", "bagel", "baker", "bamboo",
	"banjo", "barrel", "basil", "beach", "beacon", "bean", "beaver", "bell",
	"berry", "birch", "bison", "blade", "blanket", "bloom", "bluff", "board",
	"bolt", "bonus", "book", "boots", "bottle", "bridge", "brook", "broom",
	"bucket", "budget", "bugle", "bunny", "burlap", "butter", "cabin", "cable",
	"cactus", "camel", "candle", "canoe", "canyon", "carbon", "cargo", "carrot",
	"castle", "cedar", "cello", "chalk", "chapel", "cherry", "chess", "chief",
	"chime", "cider", "cinema", "circle", "citrus", "claim", "clay", "cliff",
	"clock", "cloud", "clover", "coast", "cobalt", "coco", "comet", "copper",
	"coral", "cotton", "cougar", "cradle", "crane", "crater", "crayon", "creek",
	"cricket", "crown", "crystal", "cube", "cyclone", "daisy", "dawn", "delta",
	"denim", "desert", "diesel", "dairy", "dome", "donkey", "dove", "dragon",
	"drum", "dune", "eagle", "easel", "echo", "eclipse", "elbow", "elder",
	"elm", "ember", "engine", "falcon", "fable", "feather", "fern", "fiddle",
	"field", "fig", "finch", "fjord", "flame", "flint", "flute", "foam",
	"forest", "fossil", "fox", "frost", "galaxy", "garden", "garnet", "gazebo",
	"gecko", "geyser", "ginger", "glacier", "globe", "goose", "gourd", "grain",
	"granite", "grape", "gravel", "grove", "hammer", "harbor", "harp", "hawk",
	"hazel", "heron", "hill", "honey", "hoof", "horizon", "iceberg", "iris",
	"iron", "island", "ivory", "ivy", "jade", "jaguar", "jasper", "jelly",
	"jigsaw", "juniper", "kayak", "kettle", "kiwi", "knob", "lagoon", "lake",
	"lantern", "lava", "lemon", "lily", "linen", "lion", "lizard", "llama",
	"locket", "lotus", "lunar", "lynx", "magnet", "mango", "maple", "marble",
	"meadow", "melon", "mesa", "mint", "mirror", "moose", "moss", "moth",
	"mule", "mural", "nectar", "nickel", "north", "nutmeg", "oak", "oasis",
	"ocean", "olive", "onion", "opal", "orbit", "orchid", "otter", "owl",
	"oyster", "palm", "panda", "pansy", "parka", "peach", "pebble", "pecan",
	"pelican", "pepper", "pigeon", "pine", "planet", "plum", "pond", "poppy",
	"prairie", "prism", "pumpkin", "quartz", "quill", "rabbit", "raft", "rain",
	"raven", "reef", "ridge", "river", "robin", "rocket", "rose", "rye",
	"saddle", "salmon", "sand", "sapling", "seal", "shell", "sierra", "spruce",
}
