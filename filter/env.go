package filter

/*
Here the Env used in the chat target filters is defined.
Once this struct is fixed, it should not be changed, otherwise filters attached
to older messages may not compile any more (f.e. if properties are renamed etc.)
*/

type Participant struct {
	ListId       string
	Handle       string
	Registered   bool
	Broadcasting bool
	Moderator    bool
}

type Room struct {
	Name  string
	Topic string
}

// Env is the evaluation environment of a chat target filter. Sender is the
// participant who sent the message, Viewer the participant the message is
// about to be delivered to; the filter runs once per viewer.
type Env struct {
	Room    Room
	Sender  Participant
	Viewer  Participant
	Created int64

	AsInt         func(string) int64
	AsFloat       func(string) float64
	AsStringSlice func(string) []string
	AsIntSlice    func(string) []int64
	AsFloatSlice  func(string) []float64
}

// NewEnv returns an Env with the conversion helpers bound.
func NewEnv() Env {
	return Env{
		AsInt:         AsInt,
		AsFloat:       AsFloat,
		AsStringSlice: AsStringSlice,
		AsIntSlice:    AsIntSlice,
		AsFloatSlice:  AsFloatSlice,
	}
}
