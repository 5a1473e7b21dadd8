package pose

import "strings"

// Labels that do not follow the "<English>_or_<Sanskrit>_" convention.
var traditionalOverrides = map[string]string{
	"Akarna_Dhanurasana":      "Akarna Dhanurasana",
	"Cockerel_Pose":           "Kukkutasana",
	"Rajakapotasana":          "Rajakapotasana",
	"Sitting pose 1 (normal)": "Sukhasana",
	"Split pose":              "Hanumanasana",
	"Standing_Forward_Bend_pose_or_Uttanasana_":                                 "Uttanasana",
	"viparita_virabhadrasana_or_reverse_warrior_pose":                           "Viparita Virabhadrasana",
	"Pose_Dedicated_to_the_Sage_Koundinya_or_Eka_Pada_Koundinyanasana_I_and_II": "Eka Pada Koundinyanasana",
}

// TraditionalName maps a classifier label to its Sanskrit name. Labels are
// mostly "Tree_Pose_or_Vrksasana_"; anything unrecognised is returned as is.
func TraditionalName(label string) string {
	if name, ok := traditionalOverrides[label]; ok {
		return name
	}
	idx := strings.LastIndex(label, "_or_")
	if idx < 0 {
		return label
	}
	name := strings.Trim(label[idx+len("_or_"):], "_ ")
	if name == "" {
		return label
	}
	return strings.ReplaceAll(name, "_", " ")
}
