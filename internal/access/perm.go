package access

import (
	"fmt"
	"math/bits"
	"strings"
)

// Perm is a single enumerated right.
type Perm int

const (
	ActionMessage Perm = iota
	AdminMessageReceive
	AdminMessageSend
	Antiban
	Antideregister
	Antikick
	Antikill
	Antipoll
	Antipollban
	Antipollkick
	Antipollkill
	Ban
	Banlist
	Countdown
	Date
	EndGame
	FlagHistory
	FlagMod
	HideAdmin
	IdleStats
	Info
	Kick
	Kill
	LagStats
	Lagwarn
	ListPerms
	MasterBan
	Mute
	PlayerList
	Poll
	PollBan
	PollKick
	PollKill
	PollSet
	PollFlagReset
	PrivateMessage
	Record
	Rejoin
	RemovePerms
	Replay
	RequireIdentify
	Say
	SetAll
	SetPassword
	SetPerms
	SetVar
	ShowOthers
	ShortBan
	ShutdownServer
	Spawn
	SuperKill
	Talk
	Unban
	Unmute
	Veto
	ViewReports
	Vote
	// LastPerm marks the end of the enumeration and is never granted.
	LastPerm
)

var permNames = [LastPerm]string{
	ActionMessage:       "actionMessage",
	AdminMessageReceive: "adminMessageReceive",
	AdminMessageSend:    "adminMessageSend",
	Antiban:             "antiban",
	Antideregister:      "antideregister",
	Antikick:            "antikick",
	Antikill:            "antikill",
	Antipoll:            "antipoll",
	Antipollban:         "antipollban",
	Antipollkick:        "antipollkick",
	Antipollkill:        "antipollkill",
	Ban:                 "ban",
	Banlist:             "banlist",
	Countdown:           "countdown",
	Date:                "date",
	EndGame:             "endGame",
	FlagHistory:         "flagHistory",
	FlagMod:             "flagMod",
	HideAdmin:           "hideAdmin",
	IdleStats:           "idleStats",
	Info:                "info",
	Kick:                "kick",
	Kill:                "kill",
	LagStats:            "lagStats",
	Lagwarn:             "lagwarn",
	ListPerms:           "listPerms",
	MasterBan:           "masterban",
	Mute:                "mute",
	PlayerList:          "playerList",
	Poll:                "poll",
	PollBan:             "pollBan",
	PollKick:            "pollKick",
	PollKill:            "pollKill",
	PollSet:             "pollSet",
	PollFlagReset:       "pollFlagReset",
	PrivateMessage:      "privateMessage",
	Record:              "record",
	Rejoin:              "rejoin",
	RemovePerms:         "removePerms",
	Replay:              "replay",
	RequireIdentify:     "requireIdentify",
	Say:                 "say",
	SetAll:              "setAll",
	SetPassword:         "setPassword",
	SetPerms:            "setPerms",
	SetVar:              "setVar",
	ShowOthers:          "showOthers",
	ShortBan:            "shortBan",
	ShutdownServer:      "shutdownServer",
	Spawn:               "spawn",
	SuperKill:           "superKill",
	Talk:                "talk",
	Unban:               "unban",
	Unmute:              "unmute",
	Veto:                "veto",
	ViewReports:         "viewReports",
	Vote:                "vote",
}

var permsByName = func() map[string]Perm {
	m := make(map[string]Perm, LastPerm)
	for p := Perm(0); p < LastPerm; p++ {
		m[strings.ToUpper(permNames[p])] = p
	}
	return m
}()

// String returns the name used in permission files.
func (p Perm) String() string {
	if p < 0 || p >= LastPerm {
		return fmt.Sprintf("UNKNOWN_PERMISSION: %d", int(p))
	}
	return permNames[p]
}

// PermFromName resolves a case-insensitive right name. Unknown names return LastPerm.
func PermFromName(name string) Perm {
	if p, ok := permsByName[strings.ToUpper(name)]; ok {
		return p
	}
	return LastPerm
}

// PermSet is a set of rights stored as a bitmask.
type PermSet uint64

// AllPerms contains every enumerated right.
const AllPerms = PermSet(1)<<uint(LastPerm) - 1

func (s PermSet) Has(p Perm) bool {
	return p >= 0 && p < LastPerm && s&(1<<uint(p)) != 0
}

func (s *PermSet) Set(p Perm) {
	if p >= 0 && p < LastPerm {
		*s |= 1 << uint(p)
	}
}

func (s *PermSet) Clear(p Perm) {
	if p >= 0 && p < LastPerm {
		*s &^= 1 << uint(p)
	}
}

func (s PermSet) Len() int {
	return bits.OnesCount64(uint64(s))
}

// Perms lists the rights in enumeration order.
func (s PermSet) Perms() []Perm {
	out := make([]Perm, 0, s.Len())
	for p := Perm(0); p < LastPerm; p++ {
		if s.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// Names lists the right names in enumeration order.
func (s PermSet) Names() []string {
	perms := s.Perms()
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = p.String()
	}
	return out
}
