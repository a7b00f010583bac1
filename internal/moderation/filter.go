// Package moderation turns upstream content-filter rejections into a
// persona-appropriate refusal instead of a raw error.
package moderation

import "fmt"

type personaRole struct {
	role       string
	suggestion string
}

var roles = map[string]personaRole{
	"sun-shield": {
		role:       "help you keep your family safe online, and that includes promoting ethical and legal behavior",
		suggestion: "For example, I can help you learn how to protect your kids from unsafe websites or set up secure online activities for them.",
	},
	"growth-ray": {
		role:       "support you in nurturing your child's emotional development, and that includes promoting positive and healthy interactions",
		suggestion: "For example, I can help you with strategies to handle tantrums or foster resilience in your child.",
	},
	"sunbeam": {
		role:       "strengthen your parent-child relationship, and that includes encouraging positive and uplifting activities",
		suggestion: "For example, I can suggest fun activities to build confidence and create lasting bonds with your child.",
	},
	"inner-dawn": {
		role:       "support your well-being as a parent, and that includes promoting mindful and balanced interactions",
		suggestion: "For example, I can help you with stress-relief techniques or mindfulness exercises for you and your family.",
	},
}

var defaultRole = personaRole{
	role:       "assist you with parenting in a positive and ethical way",
	suggestion: "For example, I can provide tips on creating a safe and supportive environment for your family.",
}

// Refusal builds the assistant reply stored and shown when the provider's
// safety filter blocks a turn.
func Refusal(personaID string) string {
	r, ok := roles[personaID]
	if !ok {
		r = defaultRole
	}
	return fmt.Sprintf(
		"I'm sorry, but I can't assist with that request because it goes against our safety guidelines. "+
			"My role is to %s. %s What would you like to explore instead?",
		r.role, r.suggestion,
	)
}
