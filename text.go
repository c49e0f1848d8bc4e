package main

const SiteTagline = "Pilot & Coder"

const FooterNotice = "All rights reserved."

// ContactForm labels the contact form. The form is display only.
var ContactForm = struct {
	NameLabel, NamePlaceholder       string
	EmailLabel, EmailPlaceholder     string
	MessageLabel, MessagePlaceholder string
	Send                             string
}{
	NameLabel:          "Name",
	NamePlaceholder:    "Your name",
	EmailLabel:         "Email",
	EmailPlaceholder:   "Your email",
	MessageLabel:       "Message",
	MessagePlaceholder: "Your message",
	Send:               "Send Message",
}

const PrivacyPolicy = `This site counts page views to learn which sections visitors find useful.

IP addresses are never stored. Each one is combined with a random salt and hashed, and only a short prefix of the hash is kept.

Requests sent with the Do Not Track header are not counted.

The contact form does not send or store anything you type into it.`
