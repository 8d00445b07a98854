package cache

// Query operation names shared by every view of the job data.
const (
	OpCreateJob  = "createJob"
	OpGetJobByID = "getJobById"
	OpGetJobs    = "getJobs"
)

// Key identifies a cached query result: an operation name plus an
// optional parameter.
type Key struct {
	Op    string
	Param string
}

// String renders the key as "op" or "op/param".
func (k Key) String() string {
	if k.Param == "" {
		return k.Op
	}
	return k.Op + "/" + k.Param
}

// Matches reports whether k falls under pattern. A pattern without a
// parameter matches every key with the same operation name.
func (k Key) Matches(pattern Key) bool {
	if k.Op != pattern.Op {
		return false
	}
	return pattern.Param == "" || k.Param == pattern.Param
}

// CreateJobKey is the "most recently created job" pointer.
func CreateJobKey() Key {
	return Key{Op: OpCreateJob}
}

// JobKey is the detail view of one job.
func JobKey(id string) Key {
	return Key{Op: OpGetJobByID, Param: id}
}

// JobsKey is the job collection.
func JobsKey() Key {
	return Key{Op: OpGetJobs}
}
