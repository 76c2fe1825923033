package models

// Course is the subset of LMS course data the archive needs.
type Course struct {
	ID        int64  `db:"id" json:"id"`
	FullName  string `db:"fullname" json:"name"`
	ShortName string `db:"shortname" json:"short_name"`
	IDNumber  string `db:"idnumber" json:"idnumber"`
}

// Activity is a course module joined with its module type and instance name.
type Activity struct {
	ID         int64  `db:"id" json:"cmid"`
	CourseID   int64  `db:"course" json:"courseId"`
	InstanceID int64  `db:"instance" json:"instanceid"`
	IDNumber   string `db:"idnumber" json:"idnumber"`
	ModName    string `db:"modname" json:"type"`
	Name       string `db:"name" json:"name"`
}

// ArchivableModules are the module types eligible for archiving.
var ArchivableModules = []string{"quiz", "assign"}

// CourseActivity is an archivable activity listed in course order.
type CourseActivity struct {
	ActivityID int64   `db:"cmid" json:"activityId"`
	CourseID   int64   `db:"course" json:"courseId"`
	ModName    string  `db:"modname" json:"type"`
	Section    int     `db:"section" json:"section"`
	Sequence   string  `db:"sequence" json:"-"`
	Archive    *bool   `db:"archive" json:"archive,omitempty"`
	Method     *string `db:"method" json:"method,omitempty"`
}

// EnrolledUser is a user enrolled in the activity's course.
type EnrolledUser struct {
	ID                int64  `db:"id"`
	FirstName         string `db:"firstname"`
	LastName          string `db:"lastname"`
	FirstNamePhonetic string `db:"firstnamephonetic"`
	LastNamePhonetic  string `db:"lastnamephonetic"`
	MiddleName        string `db:"middlename"`
	AlternateName     string `db:"alternatename"`
	Email             string `db:"email"`
	IDNumber          string `db:"idnumber"`
}

// FullName mirrors the LMS default "firstname lastname" format.
func (u EnrolledUser) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// ProfileFieldValue is one custom profile field value of a user.
type ProfileFieldValue struct {
	UserID    int64  `db:"userid"`
	ShortName string `db:"shortname"`
	Data      string `db:"data"`
}

// GroupMember links a course group to one member.
type GroupMember struct {
	GroupID int64  `db:"groupid"`
	Name    string `db:"name"`
	UserID  int64  `db:"userid"`
}
