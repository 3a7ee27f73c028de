package model

// Limits are the resource ceilings of one sandboxed step.
// Times are seconds, sizes are kilobytes.
type Limits struct {
	CPUTime      float64 `json:"cpu_time_limit" yaml:"cpuTime"`
	CPUExtraTime float64 `json:"cpu_extra_time" yaml:"cpuExtraTime"`
	WallTime     float64 `json:"wall_time_limit" yaml:"wallTime"`
	Memory       int     `json:"memory_limit" yaml:"memory"`
	Stack        int     `json:"stack_limit" yaml:"stack"`
	MaxProcesses int     `json:"max_processes_and_or_threads" yaml:"maxProcesses"`
	MaxFileSize  int     `json:"max_file_size" yaml:"maxFileSize"`
}

// DefaultRunLimits apply to fields a request leaves unset.
func DefaultRunLimits() Limits {
	return Limits{
		CPUTime:      5,
		CPUExtraTime: 1,
		WallTime:     10,
		Memory:       128000,
		Stack:        64000,
		MaxProcesses: 60,
		MaxFileSize:  1024,
	}
}

// DefaultCompileLimits is the fixed ceiling for compile steps and the upper bound for run limits.
func DefaultCompileLimits() Limits {
	return Limits{
		CPUTime:      15,
		CPUExtraTime: 5,
		WallTime:     20,
		Memory:       512000,
		Stack:        128000,
		MaxProcesses: 120,
		MaxFileSize:  4096,
	}
}

// FillZero copies every zero field from defaults.
func (l Limits) FillZero(defaults Limits) Limits {
	if l.CPUTime <= 0 {
		l.CPUTime = defaults.CPUTime
	}
	if l.CPUExtraTime <= 0 {
		l.CPUExtraTime = defaults.CPUExtraTime
	}
	if l.WallTime <= 0 {
		l.WallTime = defaults.WallTime
	}
	if l.Memory <= 0 {
		l.Memory = defaults.Memory
	}
	if l.Stack <= 0 {
		l.Stack = defaults.Stack
	}
	if l.MaxProcesses <= 0 {
		l.MaxProcesses = defaults.MaxProcesses
	}
	if l.MaxFileSize <= 0 {
		l.MaxFileSize = defaults.MaxFileSize
	}
	return l
}

// Exceeds returns the json name of the first field above ceiling, or "".
func (l Limits) Exceeds(ceiling Limits) string {
	switch {
	case l.CPUTime > ceiling.CPUTime:
		return "cpu_time_limit"
	case l.CPUExtraTime > ceiling.CPUExtraTime:
		return "cpu_extra_time"
	case l.WallTime > ceiling.WallTime:
		return "wall_time_limit"
	case l.Memory > ceiling.Memory:
		return "memory_limit"
	case l.Stack > ceiling.Stack:
		return "stack_limit"
	case l.MaxProcesses > ceiling.MaxProcesses:
		return "max_processes_and_or_threads"
	case l.MaxFileSize > ceiling.MaxFileSize:
		return "max_file_size"
	}
	return ""
}

// Flags switch accounting and IO behaviour of the run step.
type Flags struct {
	PerProcessTime   bool `json:"enable_per_process_and_thread_time_limit"`
	PerProcessMemory bool `json:"enable_per_process_and_thread_memory_limit"`
	RedirectStderr   bool `json:"redirect_stderr_to_stdout"`
	EnableNetwork    bool `json:"enable_network"`
}

// UsesCgroups reports whether any accounting is cgroup-aggregate.
func (f Flags) UsesCgroups() bool {
	return !f.PerProcessTime || !f.PerProcessMemory
}
