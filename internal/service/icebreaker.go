package service

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// icebreakers 매칭 직후 보여줄 대화 시작 질문
var icebreakers = []string{
	"If you could have dinner with anyone from history, who would it be?",
	"What's the most adventurous thing you've ever done?",
	"If you could learn any skill instantly, what would it be?",
	"What's your favorite way to spend a weekend?",
	"If you could travel anywhere right now, where would you go?",
	"What's the best concert or live event you've been to?",
	"If you could have any superpower, what would it be?",
	"What's the most interesting class you've taken in college?",
	"What's your go-to karaoke song?",
	"If you could swap lives with anyone for a day, who would it be?",
	"What's the weirdest food combination you actually enjoy?",
	"If you could master any musical instrument, which one?",
	"What's your favorite childhood memory?",
	"If you could live in any decade, which would you choose?",
	"What's the best book you've read recently?",
	"If you could have dinner with any fictional character, who?",
	"What's your hidden talent?",
	"If you could speak any language fluently, which one?",
	"What's the best advice you've ever received?",
	"If you could start any business, what would it be?",
	"What's your favorite pizza topping?",
	"If you could relive any moment in your life, which one?",
	"What's the most spontaneous thing you've done?",
	"If you could have any pet, real or mythical, what would it be?",
	"What's your biggest fear?",
	"If you could change one thing about the world, what would it be?",
	"What's your favorite movie quote?",
	"If you could be famous for something, what would it be?",
	"What's the most beautiful place you've ever been?",
	"If you could have tea with any celebrity, who would it be?",
	"What's your guilty pleasure TV show?",
	"If you could time travel, past or future?",
	"What's the best piece of advice you'd give your younger self?",
	"If you could only eat one cuisine for the rest of your life?",
	"What's your morning routine like?",
	"If you could solve one world problem, which one?",
	"What's your favorite season and why?",
	"If you could have any job for a day, what would it be?",
	"What's the last thing that made you laugh really hard?",
	"If you could design your dream house, what would it look like?",
	"What's your favorite way to relax after a stressful day?",
	"If you could witness any historical event, which one?",
	"What's the most interesting documentary you've seen?",
	"If you could be an expert in any field, which one?",
	"What's your favorite late-night snack?",
	"If you could have a conversation with your future self, what would you ask?",
	"What's the best gift you've ever received?",
	"If you could learn the truth about any conspiracy theory, which one?",
	"What's your biggest pet peeve?",
	"If you could have an unlimited supply of one thing, what would it be?",
}

// topicStarters 공통 관심사별 질문
var topicStarters = map[string][]string{
	"coding": {
		"What programming languages do you know?",
		"Working on any cool projects?",
		"Frontend or backend?",
	},
	"music": {
		"What's your favorite artist right now?",
		"Do you play any instruments?",
		"Last concert you attended?",
	},
	"sports": {
		"What sports do you play or follow?",
		"Favorite team?",
		"Been to any games recently?",
	},
	"gaming": {
		"What games are you playing now?",
		"PC or console?",
		"Favorite game of all time?",
	},
	"movies": {
		"What's the last movie you watched?",
		"Favorite movie genre?",
		"Any movie recommendations?",
	},
	"travel": {
		"Where was your last trip?",
		"Dream destination?",
		"Best travel experience?",
	},
	"food": {
		"What's your favorite cuisine?",
		"Can you cook?",
		"Best restaurant in town?",
	},
}

const maxStarters = 3

// RandomIcebreaker 질문 하나
func RandomIcebreaker() string {
	return icebreakers[rand.IntN(len(icebreakers))]
}

// Icebreakers 중복 없는 질문 n개
func Icebreakers(n int) []string {
	n = min(max(n, 0), len(icebreakers))
	out := make([]string, 0, n)
	for _, i := range rand.Perm(len(icebreakers))[:n] {
		out = append(out, icebreakers[i])
	}
	return out
}

// ConversationStarters 두 사용자의 관심사로 대화 주제 제안 (최대 3개)
//
// 공통 관심사가 없으면 무작위 질문을, 있으면 앞의 두 관심사에 대한 질문을
// 돌려준다. 준비된 질문이 없는 관심사만 겹치면 일반 문장을 만든다.
func ConversationStarters(local, remote []string) []string {
	common := CommonInterests(local, remote)
	if len(common) == 0 {
		return Icebreakers(maxStarters)
	}

	var out []string
	for _, interest := range common[:min(len(common), 2)] {
		out = append(out, topicStarters[strings.ToLower(interest)]...)
	}
	if len(out) == 0 {
		out = append(out, fmt.Sprintf("I see we both like %s! Tell me more about that.", common[0]))
	}
	return out[:min(len(out), maxStarters)]
}
