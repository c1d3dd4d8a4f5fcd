package reminder

// Built-in reminder texts, used when no reminder_<kind> email template is
// registered. Both are Go text templates over templateData.
var defaultTexts = map[Kind]struct{ Subject, Body string }{
	KindFirst: {
		Subject: "[First Reminder] Upcoming Annual Return Submission for {{.CompanyName}}",
		Body: `Dear Sir/Madam,

Your company's anniversary date is approaching, and its Annual Return will soon be due for submission to the Companies Commission of Malaysia (SSM).

  Company Name: {{.CompanyName}}
  SSM Number: {{.RegistrationNumber}}
  Incorporation Date: {{.IncorporationDate}}
  Anniversary Date: {{.AnniversaryDate}}

To ensure timely submission, please be ready to review the draft Annual Return we will provide and to arrange payment of our service fees before the submission is made.

Thank you.

Best regards,
Company Secretarial Services`,
	},
	KindSecond: {
		Subject: "[Second Reminder] Annual Return Submission Due for {{.CompanyName}}",
		Body: `Dear Sir/Madam,

Today is your company's anniversary date. The Annual Return must be submitted to the Companies Commission of Malaysia (SSM) within 30 days from today.

  Company Name: {{.CompanyName}}
  SSM Number: {{.RegistrationNumber}}
  Incorporation Date: {{.IncorporationDate}}
  Anniversary Date: {{.AnniversaryDate}}
  Due Date: {{.DueDate}}

Under Section 68 of the Companies Act 2016, late submission may result in a late filing fee of up to RM200.00 and a compound of up to RM50,000.00.

If you have not yet done so, please review the draft Annual Return and arrange payment so we can proceed with the submission.

Thank you.

Best regards,
Company Secretarial Services`,
	},
	KindThird: {
		Subject: "[Final Reminder] Annual Return Submission Due in 7 Days for {{.CompanyName}}",
		Body: `Dear Sir/Madam,

Your company's Annual Return must be submitted to the Companies Commission of Malaysia (SSM) within the next 7 days to avoid penalties.

  Company Name: {{.CompanyName}}
  SSM Number: {{.RegistrationNumber}}
  Incorporation Date: {{.IncorporationDate}}
  Anniversary Date: {{.AnniversaryDate}}
  Due Date: {{.DueDate}}

Please review the draft Annual Return and arrange payment immediately so we can proceed with the submission.

Please ignore this email if your Annual Return has already been submitted.

Thank you.

Best regards,
Company Secretarial Services`,
	},
	KindCompliance: {
		Subject: "Compliance Reminder - Annual Return and Financial Statement",
		Body: `Dear Sir/Madam,

This is a reminder of your company's obligations to the Companies Commission of Malaysia (SSM) regarding the submission of the Annual Return and Financial Statement.

  Company Name: {{.CompanyName}}
  SSM Number: {{.RegistrationNumber}}
  Incorporation Date: {{.IncorporationDate}}

Please ensure the necessary documents are submitted to SSM by the due date to avoid penalties. If you have already submitted them, kindly disregard this notice.

Thank you.`,
	},
	KindAnniversary: {
		Subject: "[Reminder] Company Anniversary Alerts",
		Body: `{{range .Today}}TODAY: {{.CompanyName}} (SSM: {{.RegistrationNumber}}) - anniversary today
{{end}}{{range .Upcoming}}UPCOMING: {{.CompanyName}} (SSM: {{.RegistrationNumber}}) - anniversary on {{.AnniversaryDate}}
{{end}}`,
	},
}
