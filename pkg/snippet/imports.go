package snippet

// DefaultImportTable maps commonly used symbols to their fully-qualified
// names for the auto-import policy. The set mirrors what generated snippets
// actually reach for; anything exotic must be imported by the snippet itself.
var DefaultImportTable = map[string]string{
	"ArrayDeque":        "java.util.ArrayDeque",
	"ArrayList":         "java.util.ArrayList",
	"Arrays":            "java.util.Arrays",
	"BigDecimal":        "java.math.BigDecimal",
	"BigInteger":        "java.math.BigInteger",
	"Collections":       "java.util.Collections",
	"Collectors":        "java.util.stream.Collectors",
	"Comparator":        "java.util.Comparator",
	"CompletableFuture": "java.util.concurrent.CompletableFuture",
	"Deque":             "java.util.Deque",
	"Duration":          "java.time.Duration",
	"HashMap":           "java.util.HashMap",
	"HashSet":           "java.util.HashSet",
	"Instant":           "java.time.Instant",
	"Iterator":          "java.util.Iterator",
	"LinkedHashMap":     "java.util.LinkedHashMap",
	"LinkedList":        "java.util.LinkedList",
	"List":              "java.util.List",
	"LocalDate":         "java.time.LocalDate",
	"LocalDateTime":     "java.time.LocalDateTime",
	"Map":               "java.util.Map",
	"Objects":           "java.util.Objects",
	"Optional":          "java.util.Optional",
	"Pattern":           "java.util.regex.Pattern",
	"Queue":             "java.util.Queue",
	"Set":               "java.util.Set",
	"Stream":            "java.util.stream.Stream",
	"StringJoiner":      "java.util.StringJoiner",
	"TimeUnit":          "java.util.concurrent.TimeUnit",
	"TreeMap":           "java.util.TreeMap",
	"TreeSet":           "java.util.TreeSet",
	"UUID":              "java.util.UUID",
	"ZonedDateTime":     "java.time.ZonedDateTime",
}
