package seccomp

// DenyList is the fixed, closed enumeration of dangerous syscalls
// installed as the last privileged action before exec (spec §4.E).
// This resolves the Open Question in spec.md §9: a concrete list,
// not deferred to configuration, grouped by the categories spec.md
// names at minimum.
var DenyList = []string{
	// Mounting new filesystems beyond what the pivot already performed.
	"mount", "umount2", "pivot_root", "chroot",

	// Loading kernel modules.
	"init_module", "finit_module", "delete_module",

	// Setting the system clock.
	"settimeofday", "clock_settime", "clock_adjtime", "adjtimex",

	// Creating new namespaces. clone and clone3 are not filtered, so
	// namespace creation through their CLONE_NEW* flags is not blocked.
	"unshare", "setns",

	// ptrace.
	"ptrace",

	// reboot.
	"reboot",

	// Kernel keyring manipulation.
	"keyctl", "add_key", "request_key",

	// Obsolete System V IPC primitives.
	"msgget", "msgsnd", "msgrcv", "msgctl",
	"semget", "semop", "semctl",
	"shmget", "shmat", "shmdt", "shmctl",
}
