// internal/service/sample_templates.go
package service

import "github.com/hyggeo/campaign-service/internal/model"

var sampleTemplates = []TemplateInput{
	{
		Name:     "Welcome to HygGeo",
		Subject:  "Welcome to HygGeo, {{first_name}}!",
		Category: string(model.CategoryWelcome),
		HTMLContent: `<h1>Velkommen, {{first_name}}!</h1>
<p>We are glad you joined the HygGeo community. Start exploring sustainable, hygge-inspired travel experiences today.</p>
<p>Dreaming of {{dream_destination}}? We will help you get there gently.</p>
<p><a href="{{unsubscribe_url}}">Unsubscribe</a></p>`,
		TextContent: `Velkommen, {{first_name}}!

We are glad you joined the HygGeo community. Start exploring sustainable, hygge-inspired travel experiences today.

Dreaming of {{dream_destination}}? We will help you get there gently.

Unsubscribe: {{unsubscribe_url}}`,
		MergeFields: []string{"first_name", "dream_destination", "unsubscribe_url"},
	},
	{
		Name:     "Monthly Newsletter",
		Subject:  "Your HygGeo monthly digest",
		Category: string(model.CategoryNewsletter),
		HTMLContent: `<h1>Hej {{first_name}},</h1>
<p>Here is what happened in the HygGeo community this month, from new slow-travel experiences to stories from fellow members.</p>
<p>You have been with us since {{member_since}}. Thank you!</p>
<p><a href="{{unsubscribe_url}}">Unsubscribe</a></p>`,
		TextContent: `Hej {{first_name}},

Here is what happened in the HygGeo community this month, from new slow-travel experiences to stories from fellow members.

You have been with us since {{member_since}}. Thank you!

Unsubscribe: {{unsubscribe_url}}`,
		MergeFields: []string{"first_name", "member_since", "unsubscribe_url"},
	},
	{
		Name:     "Sustainability Tips",
		Subject:  "{{first_name}}, small steps for greener travel",
		Category: string(model.CategorySustainability),
		HTMLContent: `<h1>Travel lighter, {{first_name}}</h1>
<p>You rated sustainability {{sustainability_priority}} out of 5. Here are a few ideas to match: take the train where you can, stay local, and pack reusables.</p>
<p><a href="{{unsubscribe_url}}">Unsubscribe</a></p>`,
		TextContent: `Travel lighter, {{first_name}}

You rated sustainability {{sustainability_priority}} out of 5. Here are a few ideas to match: take the train where you can, stay local, and pack reusables.

Unsubscribe: {{unsubscribe_url}}`,
		MergeFields: []string{"first_name", "sustainability_priority", "unsubscribe_url"},
	},
}
