// Package validation содержит проверки данных, собираемых по выбранным услугам.
package validation

import (
	"math"

	"github.com/mmeshcher/quickorder/internal/model"
)

const (
	customerSite = "Customer Site"
	other        = "Other"
)

// RequiredFields возвращает обязательные поля записи с учётом условий,
// которые включаются значениями самой записи.
func RequiredFields(category model.Category, d model.Details) []string {
	switch category {
	case model.CategoryCards:
		return []string{"cardType"}

	case model.CategoryTests:
		fields := []string{"testDate", "testTime", "testCentre"}
		if d.Flag("hasCitbTestId") {
			fields = append(fields, "citbTestId")
		}
		if d.Flag("requiresVoiceover") {
			fields = append(fields, "voiceoverLanguage")
		}
		return fields

	case model.CategoryCourses:
		fields := []string{"startDate", "location", "courseType"}
		if d.String("location") == customerSite {
			fields = append(fields, "siteAddress")
		}
		if d.String("courseType") == other {
			fields = append(fields, "otherCourseType")
		}
		if d.Flag("requiresAccommodation") {
			fields = append(fields, "accommodation.nights")
		}
		if d.Flag("differentAttendee") {
			fields = append(fields, "attendee.name", "attendee.email")
		}
		return fields

	case model.CategoryQualifications:
		fields := []string{"level", "type"}
		if d.String("level") == other {
			fields = append(fields, "otherLevel")
		}
		if d.String("type") == other {
			fields = append(fields, "otherType")
		}
		if d.Flag("requiresAssessor") {
			fields = append(fields, "assessor.assessmentDate")
		}
		return fields
	}

	return nil
}

// Completion возвращает процент заполненных обязательных полей записи (0–100).
// Запись без обязательных полей считается заполненной полностью.
func Completion(category model.Category, d model.Details) int {
	fields := RequiredFields(category, d)
	if len(fields) == 0 {
		return 100
	}

	satisfied := 0
	for _, f := range fields {
		if isFilled(d, f) {
			satisfied++
		}
	}

	return int(math.Round(100 * float64(satisfied) / float64(len(fields))))
}

// IsComplete сообщает, заполнены ли все обязательные поля записи.
func IsComplete(category model.Category, d model.Details) bool {
	return Completion(category, d) == 100
}

// MissingFields возвращает незаполненные обязательные поля в порядке их проверки.
func MissingFields(category model.Category, d model.Details) []string {
	var missing []string
	for _, f := range RequiredFields(category, d) {
		if !isFilled(d, f) {
			missing = append(missing, f)
		}
	}
	return missing
}

func isFilled(d model.Details, path string) bool {
	v, ok := d.Lookup(path)
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString && s == "" {
		return false
	}
	return true
}
